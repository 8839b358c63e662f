package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"vouchbank/audit"
	"vouchbank/cmd/internal/passphrase"
	"vouchbank/rpc"
)

const (
	defaultEndpoint = "http://127.0.0.1:8080"
	tokenEnv        = "VOUCHBANK_AUTH_TOKEN"
	secretEnv       = "VOUCHBANK_AUTH_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "balance":
		runBalance(os.Args[2:])
	case "adjust":
		runAdjust(os.Args[2:])
	case "leaderboard":
		runLeaderboard(os.Args[2:])
	case "pending":
		runPending(os.Args[2:])
	case "export":
		runExport(os.Args[2:])
	case "token":
		runToken(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: vouchbank-cli <command> [flags]

Commands:
  balance      Look up a user's point balance
  adjust       Apply a privileged balance adjustment (requires token)
  leaderboard  Show a guild's top balances
  pending      List a guild's pending vouches
  export       Write a guild's redemption history to a Parquet file
  token        Mint an admin bearer token from the shared secret`)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runBalance(args []string) {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	endpoint := fs.String("endpoint", defaultEndpoint, "RPC endpoint")
	guild := fs.String("guild", "", "Guild identifier")
	user := fs.String("user", "", "User identifier")
	fs.Parse(args)
	if *guild == "" || *user == "" {
		fatal(fmt.Errorf("guild and user are required"))
	}

	result, err := call(*endpoint, "", "points_getBalance", map[string]string{
		"guild": *guild, "user": *user,
	})
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

func runAdjust(args []string) {
	fs := flag.NewFlagSet("adjust", flag.ExitOnError)
	endpoint := fs.String("endpoint", defaultEndpoint, "RPC endpoint")
	guild := fs.String("guild", "", "Guild identifier")
	user := fs.String("user", "", "User identifier")
	delta := fs.Int64("delta", 0, "Point delta to apply (non-zero)")
	reason := fs.String("reason", "admin", "Adjustment reason recorded in the audit log")
	fs.Parse(args)
	if *guild == "" || *user == "" || *delta == 0 {
		fatal(fmt.Errorf("guild, user and a non-zero delta are required"))
	}

	result, err := call(*endpoint, os.Getenv(tokenEnv), "points_adjust", map[string]interface{}{
		"guild": *guild, "user": *user, "delta": *delta, "reason": *reason,
	})
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

func runLeaderboard(args []string) {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	endpoint := fs.String("endpoint", defaultEndpoint, "RPC endpoint")
	guild := fs.String("guild", "", "Guild identifier")
	limit := fs.Int("limit", 10, "Number of entries")
	fs.Parse(args)
	if *guild == "" {
		fatal(fmt.Errorf("guild is required"))
	}

	result, err := call(*endpoint, "", "points_leaderboard", map[string]interface{}{
		"guild": *guild, "limit": *limit,
	})
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

func runPending(args []string) {
	fs := flag.NewFlagSet("pending", flag.ExitOnError)
	endpoint := fs.String("endpoint", defaultEndpoint, "RPC endpoint")
	guild := fs.String("guild", "", "Guild identifier")
	fs.Parse(args)
	if *guild == "" {
		fatal(fmt.Errorf("guild is required"))
	}

	result, err := call(*endpoint, "", "vouch_listPending", map[string]string{"guild": *guild})
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

// runExport reads the audit database directly so history can be exported
// while the daemon is stopped.
func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", "./vouchbank-data/audit.db", "Path to the audit database")
	guild := fs.String("guild", "", "Guild identifier")
	out := fs.String("out", "redemptions.parquet", "Output Parquet file")
	limit := fs.Int("limit", 0, "Maximum rows (0 = store default)")
	fs.Parse(args)
	if *guild == "" {
		fatal(fmt.Errorf("guild is required"))
	}

	store, err := audit.Open(*dbPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rows, err := store.ExportRedemptions(ctx, *guild, *out, *limit)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("wrote %d rows to %s\n", rows, *out)
}

func runToken(args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	issuer := fs.String("issuer", "vouchbank", "Token issuer")
	subject := fs.String("subject", "operator", "Token subject")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	fs.Parse(args)

	source := passphrase.NewSource(secretEnv, "Enter RPC auth secret")
	secret, err := source.Get()
	if err != nil {
		fatal(err)
	}
	auth := rpc.NewAuthenticator(secret, *issuer)
	if auth == nil {
		fatal(fmt.Errorf("auth secret is empty"))
	}
	token, err := auth.IssueToken(*subject, rpc.ScopeAdmin, *ttl)
	if err != nil {
		fatal(err)
	}
	fmt.Println(token)
}

func call(endpoint, token, method string, params interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func printJSON(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}
