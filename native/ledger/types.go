package ledger

// Reward is a guild-catalog entry. The name is the unique key within the
// guild and is stored (and matched) exactly as entered.
type Reward struct {
	Name string `json:"name"`
	Cost uint64 `json:"cost"`
}

// Redemption reports the outcome of a successful atomic redemption.
type Redemption struct {
	Reward     Reward
	NewBalance uint64
}

// BalanceEntry is one leaderboard row.
type BalanceEntry struct {
	UserID  string `json:"user"`
	Balance uint64 `json:"balance"`
}

// Snapshot is the durable per-guild state used for startup hydration and by
// the persistence layer. Each field maps to one stored document.
type Snapshot struct {
	Balances      map[string]uint64
	Rewards       map[string]Reward
	VouchRoles    []string
	VerifyChannel string
}

// Store persists the guild-scoped documents. Every mutating engine call
// writes the full updated document for the affected table before the
// in-memory state is committed; an error rejects the mutation.
type Store interface {
	SaveBalances(guildID string, balances map[string]uint64) error
	SaveRewards(guildID string, rewards map[string]Reward) error
	SaveVouchRoles(guildID string, roles []string) error
	SaveVerifyChannel(guildID string, channelID string) error
}
