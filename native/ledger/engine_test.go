package ledger

import (
	"errors"
	"sync"
	"testing"

	"vouchbank/core/events"
)

type mockStore struct {
	mu       sync.Mutex
	balances map[string]map[string]uint64
	rewards  map[string]map[string]Reward
	roles    map[string][]string
	channels map[string]string
	failNext bool
}

func newMockStore() *mockStore {
	return &mockStore{
		balances: make(map[string]map[string]uint64),
		rewards:  make(map[string]map[string]Reward),
		roles:    make(map[string][]string),
		channels: make(map[string]string),
	}
}

var errDiskFull = errors.New("disk full")

func (s *mockStore) fail() error {
	if s.failNext {
		s.failNext = false
		return errDiskFull
	}
	return nil
}

func (s *mockStore) SaveBalances(guildID string, balances map[string]uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.balances[guildID] = balances
	return nil
}

func (s *mockStore) SaveRewards(guildID string, rewards map[string]Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.rewards[guildID] = rewards
	return nil
}

func (s *mockStore) SaveVouchRoles(guildID string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.roles[guildID] = roles
	return nil
}

func (s *mockStore) SaveVerifyChannel(guildID string, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.channels[guildID] = channelID
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *mockStore) {
	t.Helper()
	store := newMockStore()
	return NewEngine(store), store
}

func TestAdjustClampsAtZero(t *testing.T) {
	engine, _ := newTestEngine(t)

	steps := []struct {
		delta int64
		want  uint64
	}{
		{5, 5},
		{-2, 3},
		{-10, 0},
		{1, 1},
		{-1, 0},
	}
	for i, step := range steps {
		got, err := engine.Adjust("g1", "u1", step.delta, "test")
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if got != step.want {
			t.Fatalf("step %d: balance = %d, want %d", i, got, step.want)
		}
	}
	if got := engine.Balance("g1", "u1"); got != 0 {
		t.Fatalf("final balance = %d", got)
	}
}

func TestAdjustConcurrentComposes(t *testing.T) {
	engine, _ := newTestEngine(t)

	const workers = 16
	const perWorker = 25
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if _, err := engine.Adjust("g1", "u1", 1, "test"); err != nil {
					t.Errorf("adjust: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := engine.Balance("g1", "u1"); got != workers*perWorker {
		t.Fatalf("balance = %d, want %d", got, workers*perWorker)
	}
}

func TestBalanceUnknownUserIsZero(t *testing.T) {
	engine, _ := newTestEngine(t)
	if got := engine.Balance("g1", "stranger"); got != 0 {
		t.Fatalf("balance = %d", got)
	}
}

func TestGuildsIsolated(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Adjust("g1", "u1", 7, "test"); err != nil {
		t.Fatal(err)
	}
	if got := engine.Balance("g2", "u1"); got != 0 {
		t.Fatalf("cross-guild leak: balance = %d", got)
	}
}

func TestRedeemScenario(t *testing.T) {
	engine, _ := newTestEngine(t)

	if err := engine.UpsertReward("g1", "Sticker", 5); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Adjust("g1", "u1", 3, "test"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Redeem("g1", "u1", "Sticker", "command"); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if balance, err := engine.Adjust("g1", "u1", 2, "test"); err != nil || balance != 5 {
		t.Fatalf("balance = %d, err = %v", balance, err)
	}
	res, err := engine.Redeem("g1", "u1", "Sticker", "command")
	if err != nil {
		t.Fatal(err)
	}
	if res.Reward.Cost != 5 || res.NewBalance != 0 {
		t.Fatalf("redemption = %+v", res)
	}
}

func TestRedeemUnknownReward(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.Redeem("g1", "u1", "Ghost", "command"); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound, got %v", err)
	}
}

func TestRedeemNameIsCaseSensitive(t *testing.T) {
	engine, _ := newTestEngine(t)
	if err := engine.UpsertReward("g1", "Sticker", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Adjust("g1", "u1", 1, "test"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Redeem("g1", "u1", "sticker", "command"); !errors.Is(err, ErrRewardNotFound) {
		t.Fatalf("expected ErrRewardNotFound for folded name, got %v", err)
	}
}

func TestRedeemConcurrentOverdraw(t *testing.T) {
	engine, _ := newTestEngine(t)

	if err := engine.UpsertReward("g1", "Sticker", 5); err != nil {
		t.Fatal(err)
	}
	// Balance covers one redemption but not two.
	if _, err := engine.Adjust("g1", "u1", 8, "test"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			_, results[i] = engine.Redeem("g1", "u1", "Sticker", "command")
		}(i)
	}
	wg.Wait()

	var successes, insufficient int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInsufficientBalance):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 || insufficient != 1 {
		t.Fatalf("successes = %d, insufficient = %d", successes, insufficient)
	}
	if got := engine.Balance("g1", "u1"); got != 3 {
		t.Fatalf("final balance = %d, want 3", got)
	}
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	engine, store := newTestEngine(t)

	if _, err := engine.Adjust("g1", "u1", 4, "test"); err != nil {
		t.Fatal(err)
	}
	store.mu.Lock()
	store.failNext = true
	store.mu.Unlock()

	if _, err := engine.Adjust("g1", "u1", 1, "test"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if got := engine.Balance("g1", "u1"); got != 4 {
		t.Fatalf("balance mutated despite failed persist: %d", got)
	}
	store.mu.Lock()
	durable := store.balances["g1"]["u1"]
	store.mu.Unlock()
	if durable != 4 {
		t.Fatalf("durable balance = %d", durable)
	}
}

func TestRemoveReward(t *testing.T) {
	engine, _ := newTestEngine(t)
	if err := engine.UpsertReward("g1", "Sticker", 5); err != nil {
		t.Fatal(err)
	}
	found, err := engine.RemoveReward("g1", "Sticker")
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	found, err = engine.RemoveReward("g1", "Sticker")
	if err != nil || found {
		t.Fatalf("second remove found=%v err=%v", found, err)
	}
}

func TestUpsertRewardValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	if err := engine.UpsertReward("g1", "  ", 5); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if err := engine.UpsertReward("g1", "Sticker", 0); !errors.Is(err, ErrInvalidCost) {
		t.Fatalf("expected ErrInvalidCost, got %v", err)
	}
}

func TestVouchRolesSeedAndInvariant(t *testing.T) {
	engine, _ := newTestEngine(t)

	roles := engine.VouchRoles("g1")
	if len(roles) != 1 || roles[0] != DefaultSeedRole {
		t.Fatalf("seed roles = %v", roles)
	}

	added, err := engine.AddVouchRole("g1", "Baker")
	if err != nil || !added {
		t.Fatalf("added=%v err=%v", added, err)
	}
	// Case-insensitive duplicate.
	added, err = engine.AddVouchRole("g1", "baker")
	if err != nil || added {
		t.Fatalf("duplicate add accepted: added=%v err=%v", added, err)
	}

	removed, err := engine.RemoveVouchRole("g1", "BAKER")
	if err != nil || !removed {
		t.Fatalf("removed=%v err=%v", removed, err)
	}
	removed, err = engine.RemoveVouchRole("g1", "chef")
	if err != nil || !removed {
		t.Fatalf("removed=%v err=%v", removed, err)
	}
	// Removing the last role resets to the seed, never empty.
	roles = engine.VouchRoles("g1")
	if len(roles) != 1 || roles[0] != DefaultSeedRole {
		t.Fatalf("roles after emptying = %v", roles)
	}
}

func TestResetVouchRoles(t *testing.T) {
	engine, _ := newTestEngine(t)
	if _, err := engine.AddVouchRole("g1", "Baker"); err != nil {
		t.Fatal(err)
	}
	if err := engine.ResetVouchRoles("g1"); err != nil {
		t.Fatal(err)
	}
	roles := engine.VouchRoles("g1")
	if len(roles) != 1 || roles[0] != DefaultSeedRole {
		t.Fatalf("roles after reset = %v", roles)
	}
}

func TestVerifyChannel(t *testing.T) {
	engine, _ := newTestEngine(t)

	if _, ok := engine.VerifyChannel("g1"); ok {
		t.Fatal("route configured by default")
	}
	if err := engine.SetVerifyChannel("g1", "chan-9"); err != nil {
		t.Fatal(err)
	}
	channel, ok := engine.VerifyChannel("g1")
	if !ok || channel != "chan-9" {
		t.Fatalf("channel = %q ok = %v", channel, ok)
	}
	if err := engine.SetVerifyChannel("g1", ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := engine.VerifyChannel("g1"); ok {
		t.Fatal("route not cleared")
	}
}

func TestHydrate(t *testing.T) {
	engine, _ := newTestEngine(t)
	engine.Hydrate("g1", Snapshot{
		Balances:      map[string]uint64{"u1": 9},
		Rewards:       map[string]Reward{"Sticker": {Name: "Sticker", Cost: 5}},
		VouchRoles:    []string{"Baker"},
		VerifyChannel: "chan-1",
	})

	if got := engine.Balance("g1", "u1"); got != 9 {
		t.Fatalf("balance = %d", got)
	}
	if rewards := engine.Rewards("g1"); rewards["Sticker"].Cost != 5 {
		t.Fatalf("rewards = %v", rewards)
	}
	if roles := engine.VouchRoles("g1"); len(roles) != 1 || roles[0] != "Baker" {
		t.Fatalf("roles = %v", roles)
	}
	if channel, ok := engine.VerifyChannel("g1"); !ok || channel != "chan-1" {
		t.Fatalf("channel = %q ok=%v", channel, ok)
	}
}

func TestLeaderboard(t *testing.T) {
	engine, _ := newTestEngine(t)
	for user, amount := range map[string]int64{"a": 3, "b": 10, "c": 7, "d": 7} {
		if _, err := engine.Adjust("g1", user, amount, "test"); err != nil {
			t.Fatal(err)
		}
	}
	top := engine.Leaderboard("g1", 3)
	if len(top) != 3 {
		t.Fatalf("len = %d", len(top))
	}
	if top[0].UserID != "b" || top[1].UserID != "c" || top[2].UserID != "d" {
		t.Fatalf("order = %v", top)
	}
}

func TestSettersConcurrentWithMutations(t *testing.T) {
	engine := NewEngine(newMockStore())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			engine.SetEmitter(events.NoopEmitter{})
			engine.SetSeedRoles([]string{"CHEF", "Baker"})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if _, err := engine.Adjust("g1", "u1", 1, "test"); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := engine.ResetVouchRoles("g1"); err != nil {
				t.Error(err)
				return
			}
		}
	}()
	wg.Wait()

	if got := engine.Balance("g1", "u1"); got != 50 {
		t.Fatalf("balance = %d", got)
	}
}
