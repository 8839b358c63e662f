package rpc

import (
	"net/http"
	"sort"

	"vouchbank/native/ledger"
)

type rewardsListParams struct {
	Guild string `json:"guild"`
}

type rewardsListResult struct {
	Guild   string          `json:"guild"`
	Rewards []ledger.Reward `json:"rewards"`
}

type rewardUpsertParams struct {
	Guild string `json:"guild"`
	Name  string `json:"name"`
	Cost  uint64 `json:"cost"`
}

type rewardRemoveParams struct {
	Guild string `json:"guild"`
	Name  string `json:"name"`
}

type rewardRemoveResult struct {
	Removed bool `json:"removed"`
}

type redeemParams struct {
	Guild string `json:"guild"`
	User  string `json:"user"`
	Name  string `json:"name"`
}

type redeemResult struct {
	Reward     ledger.Reward `json:"reward"`
	NewBalance uint64        `json:"newBalance"`
}

func (s *Server) handleRewardsList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardsListParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild required", nil)
		return
	}
	catalog := s.node.Rewards(params.Guild)
	rewards := make([]ledger.Reward, 0, len(catalog))
	for _, reward := range catalog {
		rewards = append(rewards, reward)
	}
	sort.Slice(rewards, func(i, j int) bool { return rewards[i].Name < rewards[j].Name })
	writeResult(w, req.ID, rewardsListResult{Guild: params.Guild, Rewards: rewards})
}

func (s *Server) handleRewardsUpsert(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardUpsertParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild required", nil)
		return
	}
	if err := s.node.UpsertReward(params.Guild, params.Name, params.Cost); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	writeResult(w, req.ID, ledger.Reward{Name: params.Name, Cost: params.Cost})
}

func (s *Server) handleRewardsRemove(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rewardRemoveParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.Name == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild and name required", nil)
		return
	}
	removed, err := s.node.RemoveReward(params.Guild, params.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "removal failed", err.Error())
		return
	}
	writeResult(w, req.ID, rewardRemoveResult{Removed: removed})
}

func (s *Server) handleRewardsRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params redeemParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if params.Guild == "" || params.User == "" || params.Name == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "guild, user and name required", nil)
		return
	}
	red, err := s.node.Redeem(params.Guild, params.User, params.Name)
	if err != nil {
		redemptionErrorResponse(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, redeemResult{Reward: red.Reward, NewBalance: red.NewBalance})
}
