package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vouchbank/core"
	"vouchbank/storage"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *core.Node, *Authenticator) {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), core.NodeConfig{})
	require.NoError(t, err)
	auth := NewAuthenticator(testSecret, "vouchbank")
	server := NewServer(node, auth, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts, node, auth
}

func rpcCall(t *testing.T, url, token, method string, params interface{}) RPCResponse {
	t.Helper()
	reqBody := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = []interface{}{params}
	}
	encoded, err := json.Marshal(reqBody)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	require.NoError(t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	return rpcResp
}

func adminToken(t *testing.T, auth *Authenticator) string {
	t.Helper()
	token, err := auth.IssueToken("tester", ScopeAdmin, time.Hour)
	require.NoError(t, err)
	return token
}

func resultInto(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected rpc error: %+v", resp.Error)
	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(encoded, out))
}

func TestMethodNotFound(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp := rpcCall(t, ts.URL, "", "points_unknown", map[string]string{"guild": "g1"})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestPointsAdjustRequiresAuth(t *testing.T) {
	ts, node, auth := newTestServer(t)

	params := map[string]interface{}{"guild": "g1", "user": "u1", "delta": 3}

	resp := rpcCall(t, ts.URL, "", "points_adjust", params)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
	require.EqualValues(t, 0, node.Balance("g1", "u1"))

	// Wrong scope is refused too.
	readonly, err := auth.IssueToken("tester", "viewer", time.Hour)
	require.NoError(t, err)
	resp = rpcCall(t, ts.URL, readonly, "points_adjust", params)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	resp = rpcCall(t, ts.URL, adminToken(t, auth), "points_adjust", params)
	var result balanceResult
	resultInto(t, resp, &result)
	require.EqualValues(t, 3, result.Balance)
	require.EqualValues(t, 3, node.Balance("g1", "u1"))
}

func TestPointsGetBalanceAndLeaderboard(t *testing.T) {
	ts, node, _ := newTestServer(t)
	_, err := node.Adjust("g1", "u1", 5, "admin")
	require.NoError(t, err)
	_, err = node.Adjust("g1", "u2", 2, "admin")
	require.NoError(t, err)

	var balance balanceResult
	resultInto(t, rpcCall(t, ts.URL, "", "points_getBalance", map[string]string{"guild": "g1", "user": "u1"}), &balance)
	require.EqualValues(t, 5, balance.Balance)

	var board leaderboardResult
	resultInto(t, rpcCall(t, ts.URL, "", "points_leaderboard", map[string]interface{}{"guild": "g1"}), &board)
	require.Len(t, board.Entries, 2)
	require.Equal(t, "u1", board.Entries[0].UserID)
}

func TestRewardsRedeemErrorMapping(t *testing.T) {
	ts, node, auth := newTestServer(t)
	token := adminToken(t, auth)

	resp := rpcCall(t, ts.URL, token, "rewards_upsert", map[string]interface{}{
		"guild": "g1", "name": "Sticker", "cost": 5,
	})
	require.Nil(t, resp.Error)

	resp = rpcCall(t, ts.URL, "", "rewards_redeem", map[string]string{
		"guild": "g1", "user": "u1", "name": "Missing",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)

	resp = rpcCall(t, ts.URL, "", "rewards_redeem", map[string]string{
		"guild": "g1", "user": "u1", "name": "Sticker",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeRejected, resp.Error.Code)

	_, err := node.Adjust("g1", "u1", 5, "admin")
	require.NoError(t, err)
	resp = rpcCall(t, ts.URL, "", "rewards_redeem", map[string]string{
		"guild": "g1", "user": "u1", "name": "Sticker",
	})
	var result redeemResult
	resultInto(t, resp, &result)
	require.EqualValues(t, 0, result.NewBalance)
}

func TestRewardsUpsertValidation(t *testing.T) {
	ts, _, auth := newTestServer(t)
	resp := rpcCall(t, ts.URL, adminToken(t, auth), "rewards_upsert", map[string]interface{}{
		"guild": "g1", "name": "Free", "cost": 0,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestVouchFlowOverRPC(t *testing.T) {
	ts, node, auth := newTestServer(t)
	token := adminToken(t, auth)

	resp := rpcCall(t, ts.URL, token, "vouch_setChannel", map[string]string{
		"guild": "g1", "channel": "verify",
	})
	require.Nil(t, resp.Error)

	var submit vouchSubmitResult
	resultInto(t, rpcCall(t, ts.URL, "", "vouch_submit", map[string]interface{}{
		"guild": "g1", "user": "u1",
		"evidence":       true,
		"mentionedRoles": []string{"CHEF"},
	}), &submit)
	require.True(t, submit.Qualified)
	require.NotEmpty(t, submit.PendingID)
	require.False(t, submit.AutoAwarded)

	resp = rpcCall(t, ts.URL, "", "vouch_decide", map[string]interface{}{
		"id": submit.PendingID, "decidedBy": "admin", "approve": true,
	})
	require.NotNil(t, resp.Error, "decide must require admin scope")

	var decide vouchDecideResult
	resultInto(t, rpcCall(t, ts.URL, token, "vouch_decide", map[string]interface{}{
		"id": submit.PendingID, "decidedBy": "admin", "approve": true,
	}), &decide)
	require.True(t, decide.Approved)
	require.EqualValues(t, 1, decide.NewBalance)
	require.EqualValues(t, 1, node.Balance("g1", "u1"))

	resp = rpcCall(t, ts.URL, token, "vouch_decide", map[string]interface{}{
		"id": submit.PendingID, "decidedBy": "admin", "approve": true,
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeNotFound, resp.Error.Code)
}

func TestVouchRoleAdministration(t *testing.T) {
	ts, _, auth := newTestServer(t)
	token := adminToken(t, auth)

	var change roleChangeResult
	resultInto(t, rpcCall(t, ts.URL, token, "vouch_addRole", map[string]string{
		"guild": "g1", "role": "Baker",
	}), &change)
	require.True(t, change.Changed)
	require.Contains(t, change.Roles, "Baker")

	// Duplicate add (case-insensitive) is a no-op.
	resultInto(t, rpcCall(t, ts.URL, token, "vouch_addRole", map[string]string{
		"guild": "g1", "role": "baker",
	}), &change)
	require.False(t, change.Changed)

	var roles []string
	resultInto(t, rpcCall(t, ts.URL, token, "vouch_resetRoles", map[string]string{"guild": "g1"}), &roles)
	require.NotContains(t, roles, "Baker")
}

func TestSessionOverRPC(t *testing.T) {
	ts, node, auth := newTestServer(t)
	token := adminToken(t, auth)

	_, err := node.Adjust("g1", "u1", 5, "admin")
	require.NoError(t, err)
	resp := rpcCall(t, ts.URL, token, "rewards_upsert", map[string]interface{}{
		"guild": "g1", "name": "Sticker", "cost": 3,
	})
	require.Nil(t, resp.Error)

	var view struct {
		ID      string `json:"id"`
		Balance uint64 `json:"balance"`
		Items   []struct {
			Name       string `json:"name"`
			Affordable bool   `json:"affordable"`
		} `json:"items"`
	}
	resultInto(t, rpcCall(t, ts.URL, "", "session_open", map[string]string{
		"guild": "g1", "user": "u1",
	}), &view)
	require.NotEmpty(t, view.ID)
	require.Len(t, view.Items, 1)
	require.True(t, view.Items[0].Affordable)

	resp = rpcCall(t, ts.URL, "", "session_redeem", map[string]string{
		"session": view.ID, "user": "intruder", "name": "Sticker",
	})
	require.NotNil(t, resp.Error)
	require.Equal(t, codeRejected, resp.Error.Code)

	var result redeemResult
	resultInto(t, rpcCall(t, ts.URL, "", "session_redeem", map[string]string{
		"session": view.ID, "user": "u1", "name": "Sticker",
	}), &result)
	require.EqualValues(t, 2, result.NewBalance)
}

func TestHealthz(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidJSONPayload(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Post(ts.URL, "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rpcResp RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpcResp))
	require.NotNil(t, rpcResp.Error)
	require.Equal(t, codeParseError, rpcResp.Error.Code)
}
