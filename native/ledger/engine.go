package ledger

import (
	"fmt"
	"sort"
	"sync"

	"vouchbank/core/events"
	"vouchbank/core/types"
)

// DefaultSeedRole is the valid vouch role a guild starts with. The role set
// invariant (never empty) resets to this seed when the last entry is removed.
const DefaultSeedRole = "CHEF"

// Engine owns every guild aggregate: point balances, the reward catalog, the
// valid vouch-role set and the verification route. All reads and mutations of
// one guild serialize on that guild's mutex; guilds never contend with each
// other. Mutations persist the full updated document through the Store before
// the in-memory state is committed, so a failed write leaves the prior state
// visible.
type Engine struct {
	mu     sync.RWMutex
	guilds map[string]*guildState

	store     Store
	emitter   events.Emitter
	seedRoles []string
}

type guildState struct {
	mu            sync.Mutex
	id            string
	balances      map[string]uint64
	rewards       map[string]Reward
	vouchRoles    []string
	verifyChannel string
}

// NewEngine constructs an engine backed by the provided store.
func NewEngine(store Store) *Engine {
	return &Engine{
		guilds:    make(map[string]*guildState),
		store:     store,
		emitter:   events.NoopEmitter{},
		seedRoles: []string{DefaultSeedRole},
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitter = emitter
}

// SetSeedRoles overrides the default vouch-role seed for new guilds. Empty or
// blank-only input is ignored to preserve the non-empty invariant.
func (e *Engine) SetSeedRoles(roles []string) {
	cleaned := make([]string, 0, len(roles))
	for _, r := range roles {
		if name := types.CleanName(r); name != "" {
			cleaned = append(cleaned, name)
		}
	}
	if len(cleaned) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seedRoles = cleaned
}

func (e *Engine) emit(evt events.Event) {
	e.mu.RLock()
	emitter := e.emitter
	e.mu.RUnlock()
	if emitter != nil {
		emitter.Emit(evt)
	}
}

func (e *Engine) seedRoleSet() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.seedRoles...)
}

// ensure returns the guild aggregate, creating it lazily on first reference.
// Creation is in-memory only: nothing is persisted until the first mutation.
func (e *Engine) ensure(guildID string) *guildState {
	e.mu.RLock()
	g, ok := e.guilds[guildID]
	e.mu.RUnlock()
	if ok {
		return g
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok = e.guilds[guildID]; ok {
		return g
	}
	g = &guildState{
		id:         guildID,
		balances:   make(map[string]uint64),
		rewards:    make(map[string]Reward),
		vouchRoles: append([]string(nil), e.seedRoles...),
	}
	e.guilds[guildID] = g
	return g
}

// Hydrate installs a snapshot loaded from the store at startup. It replaces
// any in-memory state for the guild and must be called before serving.
func (e *Engine) Hydrate(guildID string, snap Snapshot) {
	g := e.ensure(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if snap.Balances != nil {
		g.balances = snap.Balances
	}
	if snap.Rewards != nil {
		g.rewards = snap.Rewards
	}
	if len(snap.VouchRoles) > 0 {
		g.vouchRoles = append([]string(nil), snap.VouchRoles...)
	}
	g.verifyChannel = snap.VerifyChannel
}

// Balance returns the user's point balance, 0 for unseen users.
func (e *Engine) Balance(guildID, userID string) uint64 {
	g := e.ensure(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[userID]
}

// Adjust applies delta to the user's balance, clamping the result at 0. The
// read-modify-write is one step under the guild lock, so concurrent adjusts
// compose and never lose an update. Reason tags the emitted event.
func (e *Engine) Adjust(guildID, userID string, delta int64, reason string) (uint64, error) {
	if e.store == nil {
		return 0, ErrNilStore
	}
	g := e.ensure(guildID)

	g.mu.Lock()
	current := g.balances[userID]
	next := applyDelta(current, delta)
	updated := cloneBalances(g.balances)
	if next == 0 {
		delete(updated, userID)
	} else {
		updated[userID] = next
	}
	if err := e.store.SaveBalances(guildID, updated); err != nil {
		g.mu.Unlock()
		return current, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	g.balances = updated
	g.mu.Unlock()

	e.emit(events.PointsAdjusted{
		GuildID: guildID,
		UserID:  userID,
		Delta:   delta,
		Balance: next,
		Reason:  reason,
	})
	return next, nil
}

func applyDelta(current uint64, delta int64) uint64 {
	if delta >= 0 {
		return current + uint64(delta)
	}
	debit := uint64(-delta)
	if debit >= current {
		return 0
	}
	return current - debit
}

// Rewards returns a copy of the guild's reward catalog.
func (e *Engine) Rewards(guildID string) map[string]Reward {
	g := e.ensure(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return cloneRewards(g.rewards)
}

// UpsertReward creates or overwrites a catalog entry.
func (e *Engine) UpsertReward(guildID, name string, cost uint64) error {
	if e.store == nil {
		return ErrNilStore
	}
	name = types.CleanName(name)
	if name == "" {
		return ErrNameRequired
	}
	if cost == 0 {
		return ErrInvalidCost
	}
	g := e.ensure(guildID)

	g.mu.Lock()
	updated := cloneRewards(g.rewards)
	updated[name] = Reward{Name: name, Cost: cost}
	if err := e.store.SaveRewards(guildID, updated); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	g.rewards = updated
	g.mu.Unlock()

	e.emit(events.RewardUpserted{GuildID: guildID, Name: name, Cost: cost})
	return nil
}

// RemoveReward deletes a catalog entry by exact name, reporting whether it
// existed.
func (e *Engine) RemoveReward(guildID, name string) (bool, error) {
	if e.store == nil {
		return false, ErrNilStore
	}
	name = types.CleanName(name)
	g := e.ensure(guildID)

	g.mu.Lock()
	if _, ok := g.rewards[name]; !ok {
		g.mu.Unlock()
		return false, nil
	}
	updated := cloneRewards(g.rewards)
	delete(updated, name)
	if err := e.store.SaveRewards(guildID, updated); err != nil {
		g.mu.Unlock()
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	g.rewards = updated
	g.mu.Unlock()

	e.emit(events.RewardRemoved{GuildID: guildID, Name: name})
	return true, nil
}

// Redeem looks up the reward by exact name and deducts its cost from the
// user's balance as one indivisible step under the guild lock. Two concurrent
// redemptions that would jointly overdraw resolve to exactly one success.
// Via tags the origin of the request ("command", "session").
func (e *Engine) Redeem(guildID, userID, name, via string) (Redemption, error) {
	if e.store == nil {
		return Redemption{}, ErrNilStore
	}
	name = types.CleanName(name)
	g := e.ensure(guildID)

	g.mu.Lock()
	reward, ok := g.rewards[name]
	if !ok {
		g.mu.Unlock()
		return Redemption{}, ErrRewardNotFound
	}
	balance := g.balances[userID]
	if balance < reward.Cost {
		g.mu.Unlock()
		return Redemption{}, ErrInsufficientBalance
	}
	next := balance - reward.Cost
	updated := cloneBalances(g.balances)
	if next == 0 {
		delete(updated, userID)
	} else {
		updated[userID] = next
	}
	if err := e.store.SaveBalances(guildID, updated); err != nil {
		g.mu.Unlock()
		return Redemption{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	g.balances = updated
	g.mu.Unlock()

	e.emit(events.RewardRedeemed{
		GuildID: guildID,
		UserID:  userID,
		Name:    reward.Name,
		Cost:    reward.Cost,
		Balance: next,
		Via:     via,
	})
	return Redemption{Reward: reward, NewBalance: next}, nil
}

// VouchRoles returns a copy of the guild's valid vouch-role list, seeded with
// the default on first access.
func (e *Engine) VouchRoles(guildID string) []string {
	g := e.ensure(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.vouchRoles...)
}

// AddVouchRole appends a role name, preserving its case. Adding a name that
// already exists under case-insensitive comparison reports false.
func (e *Engine) AddVouchRole(guildID, role string) (bool, error) {
	if e.store == nil {
		return false, ErrNilStore
	}
	role = types.CleanName(role)
	if role == "" {
		return false, ErrNameRequired
	}
	g := e.ensure(guildID)

	g.mu.Lock()
	for _, existing := range g.vouchRoles {
		if types.SameName(existing, role) {
			g.mu.Unlock()
			return false, nil
		}
	}
	updated := append(append([]string(nil), g.vouchRoles...), role)
	if err := e.store.SaveVouchRoles(guildID, updated); err != nil {
		g.mu.Unlock()
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	g.vouchRoles = updated
	g.mu.Unlock()
	return true, nil
}

// RemoveVouchRole removes the case-insensitive match for role. Removing the
// last entry resets the list to the seed so it is never empty. Reports
// whether a role was removed.
func (e *Engine) RemoveVouchRole(guildID, role string) (bool, error) {
	if e.store == nil {
		return false, ErrNilStore
	}
	g := e.ensure(guildID)

	g.mu.Lock()
	idx := -1
	for i, existing := range g.vouchRoles {
		if types.SameName(existing, role) {
			idx = i
			break
		}
	}
	if idx < 0 {
		g.mu.Unlock()
		return false, nil
	}
	updated := append([]string(nil), g.vouchRoles[:idx]...)
	updated = append(updated, g.vouchRoles[idx+1:]...)
	if len(updated) == 0 {
		updated = e.seedRoleSet()
	}
	if err := e.store.SaveVouchRoles(guildID, updated); err != nil {
		g.mu.Unlock()
		return false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	g.vouchRoles = updated
	g.mu.Unlock()
	return true, nil
}

// ResetVouchRoles restores the guild's role list to the seed.
func (e *Engine) ResetVouchRoles(guildID string) error {
	if e.store == nil {
		return ErrNilStore
	}
	g := e.ensure(guildID)

	g.mu.Lock()
	updated := e.seedRoleSet()
	if err := e.store.SaveVouchRoles(guildID, updated); err != nil {
		g.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	g.vouchRoles = updated
	g.mu.Unlock()
	return nil
}

// VerifyChannel returns the guild's verification route, if configured.
func (e *Engine) VerifyChannel(guildID string) (string, bool) {
	g := e.ensure(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verifyChannel, g.verifyChannel != ""
}

// SetVerifyChannel configures (or, with an empty channel ID, clears) the
// guild's verification route.
func (e *Engine) SetVerifyChannel(guildID, channelID string) error {
	if e.store == nil {
		return ErrNilStore
	}
	channelID = types.CleanName(channelID)
	g := e.ensure(guildID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := e.store.SaveVerifyChannel(guildID, channelID); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	g.verifyChannel = channelID
	return nil
}

// Leaderboard returns up to limit users ordered by balance descending, ties
// broken by user ID for stable output.
func (e *Engine) Leaderboard(guildID string, limit int) []BalanceEntry {
	g := e.ensure(guildID)
	g.mu.Lock()
	entries := make([]BalanceEntry, 0, len(g.balances))
	for user, balance := range g.balances {
		entries = append(entries, BalanceEntry{UserID: user, Balance: balance})
	}
	g.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Balance != entries[j].Balance {
			return entries[i].Balance > entries[j].Balance
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func cloneBalances(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneRewards(src map[string]Reward) map[string]Reward {
	dst := make(map[string]Reward, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
