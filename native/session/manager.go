package session

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vouchbank/core/events"
	"vouchbank/native/ledger"
)

// DefaultTTL is how long an interactive session stays actionable after it is
// opened.
const DefaultTTL = 5 * time.Minute

// Ledger is the live balance and catalog source backing a session. Sessions
// snapshot the catalog at open time for display, but every redemption goes
// through the ledger's atomic path against live state.
type Ledger interface {
	Balance(guildID, userID string) uint64
	Rewards(guildID string) map[string]ledger.Reward
	Redeem(guildID, userID, name, via string) (ledger.Redemption, error)
}

// Item is one catalog row in a session view, flagged with whether the owner
// could afford it when the view was rendered.
type Item struct {
	Name       string `json:"name"`
	Cost       uint64 `json:"cost"`
	Affordable bool   `json:"affordable"`
}

// View is the owner-facing snapshot returned when a session is opened.
type View struct {
	ID      string `json:"id"`
	GuildID string `json:"guild"`
	UserID  string `json:"user"`
	Balance uint64 `json:"balance"`
	Items   []Item `json:"items"`
	Expires int64  `json:"expires"`
}

type session struct {
	id      string
	guildID string
	userID  string
	expires time.Time
}

// Manager tracks open interactive sessions. A session binds a short-lived
// component view to the user who opened it; anyone else pressing its buttons
// is rejected. Expired sessions are discarded lazily on touch and by Sweep.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	ledger  Ledger
	emitter events.Emitter
	ttl     time.Duration
	nowFn   func() time.Time
}

// NewManager constructs a manager over the given ledger with the default TTL.
func NewManager(ldg Ledger) *Manager {
	return &Manager{
		sessions: make(map[string]*session),
		ledger:   ldg,
		emitter:  events.NoopEmitter{},
		ttl:      DefaultTTL,
		nowFn:    time.Now,
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emitter = emitter
}

// SetTTL overrides the session lifetime. Non-positive values restore the
// default.
func (m *Manager) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttl = ttl
}

// SetNowFunc overrides the time source. It is intended for tests.
func (m *Manager) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFn = now
}

// Open creates a session for the user and returns the rendered view: the
// owner's balance plus the guild catalog sorted by name, each row flagged
// with affordability at render time.
func (m *Manager) Open(guildID, userID string) (*View, error) {
	if m.ledger == nil {
		return nil, ErrNilLedger
	}

	balance := m.ledger.Balance(guildID, userID)
	catalog := m.ledger.Rewards(guildID)
	items := make([]Item, 0, len(catalog))
	for _, reward := range catalog {
		items = append(items, Item{
			Name:       reward.Name,
			Cost:       reward.Cost,
			Affordable: reward.Cost <= balance,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	m.mu.Lock()
	s := &session{
		id:      uuid.NewString(),
		guildID: guildID,
		userID:  userID,
		expires: m.nowFn().Add(m.ttl),
	}
	m.sessions[s.id] = s
	emitter := m.emitter
	m.mu.Unlock()

	emitter.Emit(events.SessionOpened{ID: s.id, GuildID: guildID, UserID: userID})
	return &View{
		ID:      s.id,
		GuildID: guildID,
		UserID:  userID,
		Balance: balance,
		Items:   items,
		Expires: s.expires.Unix(),
	}, nil
}

// Redeem performs a redemption through an open session. The acting user must
// be the session owner and the session must not have expired; the redemption
// itself runs against live ledger state, so a stale affordability flag in the
// view cannot overdraw.
func (m *Manager) Redeem(sessionID, actingUser, rewardName string) (ledger.Redemption, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return ledger.Redemption{}, ErrSessionNotFound
	}
	if m.nowFn().After(s.expires) {
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		return ledger.Redemption{}, ErrSessionExpired
	}
	if s.userID != actingUser {
		m.mu.Unlock()
		return ledger.Redemption{}, ErrNotOwner
	}
	guildID, userID := s.guildID, s.userID
	emitter := m.emitter
	m.mu.Unlock()

	if m.ledger == nil {
		return ledger.Redemption{}, ErrNilLedger
	}
	red, err := m.ledger.Redeem(guildID, userID, rewardName, "session")
	if err != nil {
		return ledger.Redemption{}, err
	}
	emitter.Emit(events.SessionRedeemed{
		ID:      sessionID,
		GuildID: guildID,
		UserID:  userID,
		Reward:  red.Reward.Name,
	})
	return red, nil
}

// Close discards a session, reporting whether it existed.
func (m *Manager) Close(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	delete(m.sessions, sessionID)
	return true
}

// Sweep discards expired sessions and reports how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	removed := 0
	for id, s := range m.sessions {
		if now.After(s.expires) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked sessions, expired entries included until
// swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
