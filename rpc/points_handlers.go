package rpc

import (
	"errors"
	"net/http"

	"vouchbank/native/ledger"
)

type balanceParams struct {
	Guild string `json:"guild"`
	User  string `json:"user"`
}

type balanceResult struct {
	Guild   string `json:"guild"`
	User    string `json:"user"`
	Balance uint64 `json:"balance"`
}

type adjustParams struct {
	Guild  string `json:"guild"`
	User   string `json:"user"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason,omitempty"`
}

type leaderboardParams struct {
	Guild string `json:"guild"`
	Limit int    `json:"limit,omitempty"`
}

type leaderboardResult struct {
	Guild   string                `json:"guild"`
	Entries []ledger.BalanceEntry `json:"entries"`
}

type historyParams struct {
	Guild string `json:"guild"`
	User  string `json:"user"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) handlePointsGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.User == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild and user required", nil)
		return
	}
	writeResult(w, req.ID, balanceResult{
		Guild:   params.Guild,
		User:    params.User,
		Balance: s.node.Balance(params.Guild, params.User),
	})
}

func (s *Server) handlePointsAdjust(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adjustParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.User == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild and user required", nil)
		return
	}
	if params.Delta == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "delta must be non-zero", nil)
		return
	}
	reason := params.Reason
	if reason == "" {
		reason = "admin"
	}
	balance, err := s.node.Adjust(params.Guild, params.User, params.Delta, reason)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "adjustment failed", err.Error())
		return
	}
	writeResult(w, req.ID, balanceResult{Guild: params.Guild, User: params.User, Balance: balance})
}

func (s *Server) handlePointsLeaderboard(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params leaderboardParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild required", nil)
		return
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	writeResult(w, req.ID, leaderboardResult{
		Guild:   params.Guild,
		Entries: s.node.Leaderboard(params.Guild, limit),
	})
}

func (s *Server) handlePointsHistory(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params historyParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.User == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild and user required", nil)
		return
	}
	store := s.node.Audit()
	if store == nil {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "history not enabled", nil)
		return
	}
	history, err := store.AdjustmentHistory(r.Context(), params.Guild, params.User, params.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "history query failed", err.Error())
		return
	}
	writeResult(w, req.ID, history)
}

func redemptionErrorResponse(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, ledger.ErrRewardNotFound):
		writeError(w, http.StatusNotFound, id, codeNotFound, "reward not found", nil)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, id, codeRejected, "insufficient balance", nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "redemption failed", err.Error())
	}
}
