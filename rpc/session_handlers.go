package rpc

import (
	"errors"
	"net/http"

	"vouchbank/native/session"
)

type sessionOpenParams struct {
	Guild string `json:"guild"`
	User  string `json:"user"`
}

type sessionRedeemParams struct {
	Session string `json:"session"`
	User    string `json:"user"`
	Name    string `json:"name"`
}

func (s *Server) handleSessionOpen(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sessionOpenParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.User == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild and user required", nil)
		return
	}
	view, err := s.node.OpenSession(params.Guild, params.User)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "session open failed", err.Error())
		return
	}
	writeResult(w, req.ID, view)
}

func (s *Server) handleSessionRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params sessionRedeemParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Session == "" || params.User == "" || params.Name == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "session, user and name required", nil)
		return
	}
	red, err := s.node.SessionRedeem(params.Session, params.User, params.Name)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionExpired):
			writeError(w, http.StatusNotFound, req.ID, codeNotFound, "session not available", nil)
		case errors.Is(err, session.ErrNotOwner):
			writeError(w, http.StatusForbidden, req.ID, codeRejected, "session owned by another user", nil)
		default:
			redemptionErrorResponse(w, req.ID, err)
		}
		return
	}
	writeResult(w, req.ID, redeemResult{Reward: red.Reward, NewBalance: red.NewBalance})
}
