package rpc

import (
	"errors"
	"net/http"

	"vouchbank/native/vouch"
)

type vouchSubmitParams struct {
	Guild       string `json:"guild"`
	User        string `json:"user"`
	Channel     string `json:"channel,omitempty"`
	Message     string `json:"message,omitempty"`
	EvidenceURL string `json:"evidenceUrl,omitempty"`

	Evidence           bool     `json:"evidence"`
	MentionedRoles     []string `json:"mentionedRoles,omitempty"`
	MentionedUserRoles []string `json:"mentionedUserRoles,omitempty"`
	Text               string   `json:"text,omitempty"`
}

type vouchSubmitResult struct {
	Qualified   bool   `json:"qualified"`
	MatchedRole string `json:"matchedRole,omitempty"`
	Throttled   bool   `json:"throttled,omitempty"`
	RetrySecs   int64  `json:"retrySecs,omitempty"`
	AutoAwarded bool   `json:"autoAwarded,omitempty"`
	NewBalance  uint64 `json:"newBalance,omitempty"`
	PendingID   string `json:"pendingId,omitempty"`
}

type vouchDecideParams struct {
	ID        string `json:"id"`
	DecidedBy string `json:"decidedBy"`
	Approve   bool   `json:"approve"`
}

type vouchDecideResult struct {
	Approved   bool   `json:"approved"`
	NewBalance uint64 `json:"newBalance,omitempty"`
	User       string `json:"user"`
}

type guildParams struct {
	Guild string `json:"guild"`
}

type roleParams struct {
	Guild string `json:"guild"`
	Role  string `json:"role"`
}

type roleChangeResult struct {
	Changed bool     `json:"changed"`
	Roles   []string `json:"roles"`
}

type channelParams struct {
	Guild   string `json:"guild"`
	Channel string `json:"channel"`
}

type channelResult struct {
	Guild      string `json:"guild"`
	Channel    string `json:"channel,omitempty"`
	Configured bool   `json:"configured"`
}

func (s *Server) handleVouchSubmit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vouchSubmitParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.User == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild and user required", nil)
		return
	}
	candidate := vouch.Candidate{
		EvidencePresent:    params.Evidence,
		MentionedRoles:     params.MentionedRoles,
		MentionedUserRoles: params.MentionedUserRoles,
		Text:               params.Text,
	}
	outcome, err := s.node.SubmitVouch(params.Guild, params.User, candidate, params.Channel, params.Message, params.EvidenceURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "submission failed", err.Error())
		return
	}
	result := vouchSubmitResult{
		Qualified:   outcome.Qualified,
		MatchedRole: outcome.MatchedRole,
		Throttled:   outcome.Throttled,
		AutoAwarded: outcome.AutoAwarded,
		NewBalance:  outcome.NewBalance,
	}
	if outcome.Throttled {
		result.RetrySecs = int64(outcome.RetryAfter.Seconds())
	}
	if outcome.Pending != nil {
		result.PendingID = outcome.Pending.ID
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleVouchDecide(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params vouchDecideParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.ID == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "id required", nil)
		return
	}
	decision, err := s.node.DecideVouch(params.ID, params.DecidedBy, params.Approve)
	if err != nil {
		if errors.Is(err, vouch.ErrVouchNotFound) {
			writeError(w, http.StatusNotFound, req.ID, codeNotFound, "pending vouch not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "decision failed", err.Error())
		return
	}
	writeResult(w, req.ID, vouchDecideResult{
		Approved:   decision.Approved,
		NewBalance: decision.NewBalance,
		User:       decision.Vouch.UserID,
	})
}

func (s *Server) handleVouchListPending(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params guildParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild required", nil)
		return
	}
	writeResult(w, req.ID, s.node.PendingVouches(params.Guild))
}

func (s *Server) handleVouchListRoles(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params guildParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild required", nil)
		return
	}
	writeResult(w, req.ID, s.node.VouchRoles(params.Guild))
}

func (s *Server) handleVouchAddRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params roleParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.Role == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild and role required", nil)
		return
	}
	added, err := s.node.AddVouchRole(params.Guild, params.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "role update failed", err.Error())
		return
	}
	writeResult(w, req.ID, roleChangeResult{Changed: added, Roles: s.node.VouchRoles(params.Guild)})
}

func (s *Server) handleVouchRemoveRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params roleParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.Role == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild and role required", nil)
		return
	}
	removed, err := s.node.RemoveVouchRole(params.Guild, params.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "role update failed", err.Error())
		return
	}
	writeResult(w, req.ID, roleChangeResult{Changed: removed, Roles: s.node.VouchRoles(params.Guild)})
}

func (s *Server) handleVouchResetRoles(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params guildParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild required", nil)
		return
	}
	if err := s.node.ResetVouchRoles(params.Guild); err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "role reset failed", err.Error())
		return
	}
	writeResult(w, req.ID, s.node.VouchRoles(params.Guild))
}

func (s *Server) handleVouchSetChannel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params channelParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild required", nil)
		return
	}
	if err := s.node.SetVerifyChannel(params.Guild, params.Channel); err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "channel update failed", err.Error())
		return
	}
	channel, configured := s.node.VerifyChannel(params.Guild)
	writeResult(w, req.ID, channelResult{Guild: params.Guild, Channel: channel, Configured: configured})
}

func (s *Server) handleVouchGetChannel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params guildParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild required", nil)
		return
	}
	channel, configured := s.node.VerifyChannel(params.Guild)
	writeResult(w, req.ID, channelResult{Guild: params.Guild, Channel: channel, Configured: configured})
}
