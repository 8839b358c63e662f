package core

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vouchbank/audit"
	"vouchbank/core/events"
	"vouchbank/core/types"
	"vouchbank/native/cooldown"
	"vouchbank/native/ledger"
	"vouchbank/native/session"
	"vouchbank/native/vouch"
	"vouchbank/observability"
	"vouchbank/storage"
)

// ErrNodeNotInitialised is returned by methods called on a nil node.
var ErrNodeNotInitialised = errors.New("core: node not initialised")

// DefaultCooldownWindow is the minimum spacing between qualifying vouch
// actions for one user.
const DefaultCooldownWindow = 5 * time.Minute

const auditQueueDepth = 256

// NodeConfig carries the tunables the daemon wires from its config file.
type NodeConfig struct {
	CooldownWindow time.Duration
	SessionTTL     time.Duration
	SeedRoles      []string

	// AuditPath enables the durable history store when non-empty.
	AuditPath string
}

// Node assembles the engines into one process: hydration from the persistent
// store, the command-layer API the RPC server and platform dispatcher call,
// the event feed, and the audit writer.
type Node struct {
	db     storage.Database
	store  *GuildStore
	ledger *ledger.Engine

	cooldowns      *cooldown.Tracker
	cooldownWindow time.Duration
	vouches        *vouch.Registry
	sessions       *session.Manager
	audit          *audit.Store

	feedMu      sync.Mutex
	feedSeq     uint64
	feedNextID  uint64
	feedSubs    map[uint64]chan FeedUpdate
	feedHistory []FeedUpdate

	auditCh chan auditRecord
	wg      sync.WaitGroup
	stopped chan struct{}
}

type auditRecord struct {
	event *types.Event
	at    time.Time
}

// NewNode hydrates the engines from the database and wires them together.
func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	store := NewGuildStore(db)
	engine := ledger.NewEngine(store)
	if len(cfg.SeedRoles) > 0 {
		engine.SetSeedRoles(cfg.SeedRoles)
	}

	snapshots, err := store.LoadAll()
	if err != nil {
		return nil, err
	}
	for guildID, snap := range snapshots {
		engine.Hydrate(guildID, snap)
	}

	window := cfg.CooldownWindow
	if window <= 0 {
		window = DefaultCooldownWindow
	}

	n := &Node{
		db:             db,
		store:          store,
		ledger:         engine,
		cooldowns:      cooldown.NewTracker(),
		cooldownWindow: window,
		feedSubs:       make(map[uint64]chan FeedUpdate),
		auditCh:        make(chan auditRecord, auditQueueDepth),
		stopped:        make(chan struct{}),
	}
	n.vouches = vouch.NewRegistry(engine, engine)
	n.sessions = session.NewManager(engine)
	if cfg.SessionTTL > 0 {
		n.sessions.SetTTL(cfg.SessionTTL)
	}

	if cfg.AuditPath != "" {
		auditStore, err := audit.Open(cfg.AuditPath)
		if err != nil {
			return nil, err
		}
		n.audit = auditStore
	}

	engine.SetEmitter(n)
	n.vouches.SetEmitter(n)
	n.sessions.SetEmitter(n)
	return n, nil
}

// Emit fans an engine event out to the feed and the audit queue. It never
// blocks: slow feed subscribers miss updates, and a saturated audit queue
// drops the record with a warning.
func (n *Node) Emit(evt events.Event) {
	if n == nil || evt == nil {
		return
	}
	record := evt.Event()
	if record == nil {
		return
	}
	switch e := evt.(type) {
	case events.PointsAdjusted:
		if e.Delta > 0 {
			observability.EngineMetrics().RecordAward(e.Reason)
		}
	case events.RewardRedeemed:
		observability.EngineMetrics().RecordRedemption(e.Via)
	case events.VouchThrottled:
		observability.EngineMetrics().RecordThrottled(e.GuildID)
	}
	now := time.Now()
	n.publishFeed(FeedUpdate{
		Type:       record.Type,
		Attributes: record.Attributes,
		Timestamp:  now.Unix(),
	})
	if n.audit == nil {
		return
	}
	select {
	case n.auditCh <- auditRecord{event: record.Clone(), at: now}:
	default:
		slog.Warn("audit queue full, dropping record", "type", record.Type)
	}
}

// Start launches the audit writer and the janitor that sweeps expired
// sessions and stale cooldown entries. It returns once the goroutines are
// running; they stop when the context is cancelled.
func (n *Node) Start(ctx context.Context) {
	if n.audit != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			for {
				select {
				case <-ctx.Done():
					n.drainAudit()
					return
				case record := <-n.auditCh:
					if err := n.audit.RecordEvent(ctx, record.event, record.at); err != nil && ctx.Err() == nil {
						slog.Error("audit write failed", "type", record.event.Type, "err", err)
					}
				}
			}
		}()
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n.sessions.Sweep()
				n.cooldowns.Prune(n.cooldownWindow)
				observability.EngineMetrics().SetSessions(n.sessions.Len())
				observability.EngineMetrics().SetPending(n.vouches.Len())
			}
		}
	}()
}

// drainAudit flushes records that were accepted into the queue before
// shutdown began, so a clean stop never loses tail-end history.
func (n *Node) drainAudit() {
	for {
		select {
		case record := <-n.auditCh:
			writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := n.audit.RecordEvent(writeCtx, record.event, record.at)
			cancel()
			if err != nil {
				slog.Error("audit write failed during drain", "type", record.event.Type, "err", err)
			}
		default:
			return
		}
	}
}

// Close waits for background goroutines and releases the audit store. The
// database handle belongs to the caller.
func (n *Node) Close() error {
	n.wg.Wait()
	if n.audit != nil {
		return n.audit.Close()
	}
	return nil
}

// --- points ---

// Balance returns the user's current balance.
func (n *Node) Balance(guildID, userID string) uint64 {
	return n.ledger.Balance(guildID, userID)
}

// Adjust applies a privileged balance mutation and returns the new balance.
func (n *Node) Adjust(guildID, userID string, delta int64, reason string) (uint64, error) {
	return n.ledger.Adjust(guildID, userID, delta, reason)
}

// Leaderboard returns the guild's top balances.
func (n *Node) Leaderboard(guildID string, limit int) []ledger.BalanceEntry {
	return n.ledger.Leaderboard(guildID, limit)
}

// --- rewards ---

// Rewards returns the guild's reward catalog.
func (n *Node) Rewards(guildID string) map[string]ledger.Reward {
	return n.ledger.Rewards(guildID)
}

// UpsertReward creates or updates a catalog entry.
func (n *Node) UpsertReward(guildID, name string, cost uint64) error {
	return n.ledger.UpsertReward(guildID, name, cost)
}

// RemoveReward deletes a catalog entry, reporting whether it existed.
func (n *Node) RemoveReward(guildID, name string) (bool, error) {
	return n.ledger.RemoveReward(guildID, name)
}

// Redeem performs a direct (non-session) redemption.
func (n *Node) Redeem(guildID, userID, name string) (ledger.Redemption, error) {
	return n.ledger.Redeem(guildID, userID, name, "command")
}

// --- vouch configuration ---

// VouchRoles returns the guild's valid vouch roles.
func (n *Node) VouchRoles(guildID string) []string {
	return n.ledger.VouchRoles(guildID)
}

// AddVouchRole adds a valid role, reporting whether it was new.
func (n *Node) AddVouchRole(guildID, role string) (bool, error) {
	return n.ledger.AddVouchRole(guildID, role)
}

// RemoveVouchRole removes a valid role, reporting whether it existed.
func (n *Node) RemoveVouchRole(guildID, role string) (bool, error) {
	return n.ledger.RemoveVouchRole(guildID, role)
}

// ResetVouchRoles restores the guild's role list to the seed set.
func (n *Node) ResetVouchRoles(guildID string) error {
	return n.ledger.ResetVouchRoles(guildID)
}

// VerifyChannel returns the guild's verification route, if configured.
func (n *Node) VerifyChannel(guildID string) (string, bool) {
	return n.ledger.VerifyChannel(guildID)
}

// SetVerifyChannel configures (or, with an empty channel, clears) the
// verification route.
func (n *Node) SetVerifyChannel(guildID, channelID string) error {
	return n.ledger.SetVerifyChannel(guildID, channelID)
}

// --- vouch flow ---

// VouchOutcome reports what happened to one inbound candidate action.
type VouchOutcome struct {
	Qualified   bool
	MatchedRole string

	Throttled  bool
	RetryAfter time.Duration

	// AutoAwarded is set when the guild has no verification route and the
	// award was applied immediately.
	AutoAwarded bool
	NewBalance  uint64

	// Pending is set when the vouch entered the approval queue.
	Pending *vouch.PendingVouch
}

// SubmitVouch runs the full vouch pipeline for a candidate action: validate,
// consume the cooldown, then either award immediately (no verification route)
// or queue the vouch for human approval. The cooldown is consumed only after
// validation qualifies, so non-qualifying chatter never burns a user's slot.
func (n *Node) SubmitVouch(guildID, userID string, candidate vouch.Candidate, channelID, messageID, evidenceURL string) (VouchOutcome, error) {
	result := vouch.Validate(candidate, n.ledger.VouchRoles(guildID))
	if !result.Qualifies {
		return VouchOutcome{}, nil
	}
	outcome := VouchOutcome{Qualified: true, MatchedRole: result.MatchedRole}

	ok, remaining := n.cooldowns.TryConsume(guildID+"/"+userID, n.cooldownWindow)
	if !ok {
		outcome.Throttled = true
		outcome.RetryAfter = remaining
		n.Emit(events.VouchThrottled{
			GuildID:   guildID,
			UserID:    userID,
			RetrySecs: int64(remaining.Round(time.Second) / time.Second),
		})
		return outcome, nil
	}

	if _, routed := n.ledger.VerifyChannel(guildID); !routed {
		balance, err := n.ledger.Adjust(guildID, userID, 1, "vouch")
		if err != nil {
			return outcome, err
		}
		outcome.AutoAwarded = true
		outcome.NewBalance = balance
		return outcome, nil
	}

	pending, err := n.vouches.Submit(vouch.Submission{
		GuildID:     guildID,
		UserID:      userID,
		ChannelID:   channelID,
		MessageID:   messageID,
		EvidenceURL: evidenceURL,
		MatchedRole: result.MatchedRole,
	})
	if err != nil {
		return outcome, err
	}
	observability.EngineMetrics().SetPending(n.vouches.Len())
	outcome.Pending = pending
	return outcome, nil
}

// DecideVouch resolves a pending vouch.
func (n *Node) DecideVouch(id, decidedBy string, approve bool) (*vouch.Decision, error) {
	decision, err := n.vouches.Decide(id, decidedBy, approve)
	observability.EngineMetrics().SetPending(n.vouches.Len())
	return decision, err
}

// PendingVouches lists the guild's queued vouches.
func (n *Node) PendingVouches(guildID string) []vouch.PendingVouch {
	return n.vouches.Pending(guildID)
}

// --- sessions ---

// OpenSession opens an interactive redemption session for the user.
func (n *Node) OpenSession(guildID, userID string) (*session.View, error) {
	view, err := n.sessions.Open(guildID, userID)
	observability.EngineMetrics().SetSessions(n.sessions.Len())
	return view, err
}

// SessionRedeem redeems a reward through an open session.
func (n *Node) SessionRedeem(sessionID, actingUser, rewardName string) (ledger.Redemption, error) {
	return n.sessions.Redeem(sessionID, actingUser, rewardName)
}

// CloseSession discards a session, reporting whether it existed.
func (n *Node) CloseSession(sessionID string) bool {
	closed := n.sessions.Close(sessionID)
	observability.EngineMetrics().SetSessions(n.sessions.Len())
	return closed
}

// --- history ---

// Audit exposes the history store; nil when auditing is disabled.
func (n *Node) Audit() *audit.Store {
	return n.audit
}
