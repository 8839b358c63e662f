package events

import (
	"strconv"

	"vouchbank/core/types"
)

// Event is implemented by the typed event structs emitted by the native
// engines. Event() lowers the typed form into the flat attribute record used
// by the feed, the audit store and the logs.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter receives engine events. Implementations must not block: emitting
// happens on the request path.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

const (
	TypePointsAdjusted  = "points.adjusted"
	TypeRewardUpserted  = "reward.upserted"
	TypeRewardRemoved   = "reward.removed"
	TypeRewardRedeemed  = "reward.redeemed"
	TypeVouchSubmitted  = "vouch.submitted"
	TypeVouchApproved   = "vouch.approved"
	TypeVouchRejected   = "vouch.rejected"
	TypeVouchThrottled  = "vouch.throttled"
	TypeSessionOpened   = "session.opened"
	TypeSessionRedeemed = "session.redeemed"
)

// PointsAdjusted records a balance mutation, including automatic awards.
type PointsAdjusted struct {
	GuildID string
	UserID  string
	Delta   int64
	Balance uint64
	Reason  string
}

func (PointsAdjusted) EventType() string { return TypePointsAdjusted }

func (e PointsAdjusted) Event() *types.Event {
	return &types.Event{
		Type: TypePointsAdjusted,
		Attributes: map[string]string{
			"guild":   e.GuildID,
			"user":    e.UserID,
			"delta":   strconv.FormatInt(e.Delta, 10),
			"balance": strconv.FormatUint(e.Balance, 10),
			"reason":  e.Reason,
		},
	}
}

type RewardUpserted struct {
	GuildID string
	Name    string
	Cost    uint64
}

func (RewardUpserted) EventType() string { return TypeRewardUpserted }

func (e RewardUpserted) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardUpserted,
		Attributes: map[string]string{
			"guild":  e.GuildID,
			"reward": e.Name,
			"cost":   strconv.FormatUint(e.Cost, 10),
		},
	}
}

type RewardRemoved struct {
	GuildID string
	Name    string
}

func (RewardRemoved) EventType() string { return TypeRewardRemoved }

func (e RewardRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardRemoved,
		Attributes: map[string]string{
			"guild":  e.GuildID,
			"reward": e.Name,
		},
	}
}

// RewardRedeemed records a successful atomic redemption.
type RewardRedeemed struct {
	GuildID string
	UserID  string
	Name    string
	Cost    uint64
	Balance uint64
	Via     string
}

func (RewardRedeemed) EventType() string { return TypeRewardRedeemed }

func (e RewardRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeRewardRedeemed,
		Attributes: map[string]string{
			"guild":   e.GuildID,
			"user":    e.UserID,
			"reward":  e.Name,
			"cost":    strconv.FormatUint(e.Cost, 10),
			"balance": strconv.FormatUint(e.Balance, 10),
			"via":     e.Via,
		},
	}
}

// VouchSubmitted records a pending vouch entering the approval queue.
type VouchSubmitted struct {
	ID             string
	GuildID        string
	UserID         string
	ChannelID      string
	MatchedRole    string
	EvidenceURL    string
	EvidenceDigest string
}

func (VouchSubmitted) EventType() string { return TypeVouchSubmitted }

func (e VouchSubmitted) Event() *types.Event {
	return &types.Event{
		Type: TypeVouchSubmitted,
		Attributes: map[string]string{
			"id":       e.ID,
			"guild":    e.GuildID,
			"user":     e.UserID,
			"channel":  e.ChannelID,
			"role":     e.MatchedRole,
			"evidence": e.EvidenceURL,
			"digest":   e.EvidenceDigest,
		},
	}
}

type VouchApproved struct {
	ID        string
	GuildID   string
	UserID    string
	DecidedBy string
	Balance   uint64
}

func (VouchApproved) EventType() string { return TypeVouchApproved }

func (e VouchApproved) Event() *types.Event {
	return &types.Event{
		Type: TypeVouchApproved,
		Attributes: map[string]string{
			"id":        e.ID,
			"guild":     e.GuildID,
			"user":      e.UserID,
			"decidedBy": e.DecidedBy,
			"balance":   strconv.FormatUint(e.Balance, 10),
		},
	}
}

type VouchRejected struct {
	ID        string
	GuildID   string
	UserID    string
	DecidedBy string
}

func (VouchRejected) EventType() string { return TypeVouchRejected }

func (e VouchRejected) Event() *types.Event {
	return &types.Event{
		Type: TypeVouchRejected,
		Attributes: map[string]string{
			"id":        e.ID,
			"guild":     e.GuildID,
			"user":      e.UserID,
			"decidedBy": e.DecidedBy,
		},
	}
}

// VouchThrottled records a qualifying action rejected by the cooldown.
type VouchThrottled struct {
	GuildID   string
	UserID    string
	RetrySecs int64
}

func (VouchThrottled) EventType() string { return TypeVouchThrottled }

func (e VouchThrottled) Event() *types.Event {
	return &types.Event{
		Type: TypeVouchThrottled,
		Attributes: map[string]string{
			"guild":   e.GuildID,
			"user":    e.UserID,
			"retryIn": strconv.FormatInt(e.RetrySecs, 10),
		},
	}
}

type SessionOpened struct {
	ID      string
	GuildID string
	UserID  string
}

func (SessionOpened) EventType() string { return TypeSessionOpened }

func (e SessionOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeSessionOpened,
		Attributes: map[string]string{
			"id":    e.ID,
			"guild": e.GuildID,
			"user":  e.UserID,
		},
	}
}

// SessionRedeemed marks a redemption performed through an interactive
// session. The balance mutation itself is reported by RewardRedeemed.
type SessionRedeemed struct {
	ID      string
	GuildID string
	UserID  string
	Reward  string
}

func (SessionRedeemed) EventType() string { return TypeSessionRedeemed }

func (e SessionRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeSessionRedeemed,
		Attributes: map[string]string{
			"id":     e.ID,
			"guild":  e.GuildID,
			"user":   e.UserID,
			"reward": e.Reward,
		},
	}
}
