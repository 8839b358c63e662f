package vouch

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"vouchbank/core/events"
)

// Routes exposes the guild verification-route lookup the registry needs.
type Routes interface {
	VerifyChannel(guildID string) (string, bool)
}

// Ledger is the award sink for approved vouches.
type Ledger interface {
	Adjust(guildID, userID string, delta int64, reason string) (uint64, error)
}

// Registry is the approval state machine: Submitted → {Awarded, Rejected},
// terminal. Entries are removed atomically with the decision check, so
// concurrent decisions on one vouch resolve to exactly one winner.
type Registry struct {
	mu      sync.Mutex
	pending map[string]*PendingVouch

	routes  Routes
	ledger  Ledger
	emitter events.Emitter
	nowFn   func() time.Time
}

// NewRegistry constructs a registry over the provided route source and award
// ledger.
func NewRegistry(routes Routes, ledger Ledger) *Registry {
	return &Registry{
		pending: make(map[string]*PendingVouch),
		routes:  routes,
		ledger:  ledger,
		emitter: events.NoopEmitter{},
		nowFn:   time.Now,
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitter = emitter
}

// SetNowFunc overrides the time source. It is intended for tests.
func (r *Registry) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nowFn = now
}

// Submit creates a Submitted entry for a qualifying action. The guild must
// have a verification route configured; otherwise the submission is rejected
// with ErrNoVerifyChannel and nothing is created.
func (r *Registry) Submit(sub Submission) (*PendingVouch, error) {
	if sub.GuildID == "" || sub.UserID == "" {
		return nil, ErrInvalidSubmission
	}
	if r.routes == nil {
		return nil, ErrNilRoutes
	}
	route, ok := r.routes.VerifyChannel(sub.GuildID)
	if !ok {
		return nil, ErrNoVerifyChannel
	}

	r.mu.Lock()
	submittedAt := r.nowFn().UnixNano()
	id := ComputeVouchID(sub.GuildID, sub.UserID, submittedAt)
	for {
		if _, exists := r.pending[id]; !exists {
			break
		}
		submittedAt++
		id = ComputeVouchID(sub.GuildID, sub.UserID, submittedAt)
	}
	entry := &PendingVouch{
		ID:             id,
		GuildID:        sub.GuildID,
		UserID:         sub.UserID,
		ChannelID:      sub.ChannelID,
		MessageID:      sub.MessageID,
		EvidenceURL:    sub.EvidenceURL,
		EvidenceDigest: EvidenceDigest(sub.EvidenceURL),
		MatchedRole:    sub.MatchedRole,
		SubmittedAt:    submittedAt,
		VerifyChannel:  route,
	}
	r.pending[id] = entry
	clone := *entry
	emitter := r.emitter
	r.mu.Unlock()

	emitter.Emit(events.VouchSubmitted{
		ID:             clone.ID,
		GuildID:        clone.GuildID,
		UserID:         clone.UserID,
		ChannelID:      clone.ChannelID,
		MatchedRole:    clone.MatchedRole,
		EvidenceURL:    clone.EvidenceURL,
		EvidenceDigest: clone.EvidenceDigest,
	})
	return &clone, nil
}

// Decide performs the terminal transition for a pending vouch. The existence
// check and removal are one indivisible step, so a double decision (for
// example a double button press) yields one success and one ErrVouchNotFound.
// Approval awards one point through the ledger and returns the new balance;
// rejection mutates nothing.
func (r *Registry) Decide(id, decidedBy string, approve bool) (*Decision, error) {
	r.mu.Lock()
	entry, ok := r.pending[id]
	if !ok {
		r.mu.Unlock()
		return nil, ErrVouchNotFound
	}
	delete(r.pending, id)
	clone := *entry
	emitter := r.emitter
	r.mu.Unlock()

	if !approve {
		emitter.Emit(events.VouchRejected{
			ID:        clone.ID,
			GuildID:   clone.GuildID,
			UserID:    clone.UserID,
			DecidedBy: decidedBy,
		})
		return &Decision{Approved: false, Vouch: clone}, nil
	}

	if r.ledger == nil {
		return nil, ErrNilLedger
	}
	balance, err := r.ledger.Adjust(clone.GuildID, clone.UserID, 1, "vouch")
	if err != nil {
		// The entry is already consumed; failing the award here cannot
		// double-spend, only drop the vouch.
		return nil, fmt.Errorf("award vouch %s: %w", clone.ID, err)
	}
	emitter.Emit(events.VouchApproved{
		ID:        clone.ID,
		GuildID:   clone.GuildID,
		UserID:    clone.UserID,
		DecidedBy: decidedBy,
		Balance:   balance,
	})
	return &Decision{Approved: true, NewBalance: balance, Vouch: clone}, nil
}

// Pending lists the guild's queued vouches ordered by submission time.
func (r *Registry) Pending(guildID string) []PendingVouch {
	r.mu.Lock()
	out := make([]PendingVouch, 0)
	for _, entry := range r.pending {
		if entry.GuildID == guildID {
			out = append(out, *entry)
		}
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt < out[j].SubmittedAt })
	return out
}

// Len reports the total number of queued vouches across guilds.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
