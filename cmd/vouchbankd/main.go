package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"vouchbank/cmd/internal/passphrase"
	"vouchbank/config"
	"vouchbank/core"
	"vouchbank/observability/logging"
	"vouchbank/observability/otel"
	"vouchbank/rpc"
	"vouchbank/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	env := strings.TrimSpace(cfg.Environment)
	var logger *slog.Logger
	if cfg.Log.File != "" {
		logger = logging.SetupFile(cfg.ServiceName, env, cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	} else {
		logger = logging.Setup(cfg.ServiceName, env)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Traces || cfg.Telemetry.Metrics {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: cfg.ServiceName,
			Environment: env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Traces:      cfg.Telemetry.Traces,
			Metrics:     cfg.Telemetry.Metrics,
		})
		if err != nil {
			logger.Error("telemetry init failed", "err", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "err", err)
			}
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to prepare data directory", "dir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "guilds"))
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, core.NodeConfig{
		CooldownWindow: time.Duration(cfg.VouchCooldownSeconds) * time.Second,
		SessionTTL:     time.Duration(cfg.SessionTimeoutSecs) * time.Second,
		SeedRoles:      cfg.DefaultVouchRoles,
		AuditPath:      cfg.AuditDatabasePath,
	})
	if err != nil {
		logger.Error("failed to assemble node", "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("node close failed", "err", err)
		}
	}()

	if cfg.GuildSeedFile != "" {
		if err := applySeed(node, cfg.GuildSeedFile); err != nil {
			logger.Error("failed to apply guild seed", "file", cfg.GuildSeedFile, "err", err)
			os.Exit(1)
		}
		logger.Info("guild seed applied", "file", cfg.GuildSeedFile)
	}

	secretSource := passphrase.NewSource(cfg.AuthSecretEnv, "Enter RPC auth secret")
	secret, err := secretSource.Get()
	if err != nil {
		logger.Warn("rpc auth disabled, privileged methods unreachable", "err", err)
		secret = ""
	}
	auth := rpc.NewAuthenticator(secret, cfg.AuthIssuer)

	node.Start(ctx)

	server := rpc.NewServer(node, auth, logger)
	if err := server.Start(ctx, cfg.RPCAddress); err != nil {
		logger.Error("rpc server failed", "err", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// applySeed bootstraps guilds that have no configuration yet. Existing state
// always wins over the seed file.
func applySeed(node *core.Node, path string) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	for _, guild := range seed.Guilds {
		if guild.VerifyChannel != "" {
			if _, configured := node.VerifyChannel(guild.ID); !configured {
				if err := node.SetVerifyChannel(guild.ID, guild.VerifyChannel); err != nil {
					return fmt.Errorf("seed channel for %s: %w", guild.ID, err)
				}
			}
		}
		for _, role := range guild.VouchRoles {
			if _, err := node.AddVouchRole(guild.ID, role); err != nil {
				return fmt.Errorf("seed role %q for %s: %w", role, guild.ID, err)
			}
		}
		existing := node.Rewards(guild.ID)
		for _, reward := range guild.Rewards {
			if _, ok := existing[reward.Name]; ok {
				continue
			}
			if err := node.UpsertReward(guild.ID, reward.Name, reward.Cost); err != nil {
				return fmt.Errorf("seed reward %q for %s: %w", reward.Name, guild.ID, err)
			}
		}
	}
	return nil
}
