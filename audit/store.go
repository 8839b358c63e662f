package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"vouchbank/core/events"
	"vouchbank/core/types"
)

// Store is the durable history behind the live engines: every emitted event
// lands in the generic event log, and balance-affecting events additionally
// land in typed tables that back the history queries and exports.
type Store struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("audit: store path must be configured")

const schema = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    type TEXT NOT NULL,
    guild TEXT,
    user TEXT,
    attributes TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS adjustments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guild TEXT NOT NULL,
    user TEXT NOT NULL,
    delta INTEGER NOT NULL,
    balance INTEGER NOT NULL,
    reason TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS redemptions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    guild TEXT NOT NULL,
    user TEXT NOT NULL,
    reward TEXT NOT NULL,
    cost INTEGER NOT NULL,
    balance INTEGER NOT NULL,
    via TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_adjustments_guild_user ON adjustments(guild, user);
CREATE INDEX IF NOT EXISTS idx_redemptions_guild ON redemptions(guild);
`

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(path string) (*Store, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordEvent appends an event to the log and, for balance-affecting types,
// the matching typed table. Attribute parse failures are recorded as zero
// values rather than dropping the row.
func (s *Store) RecordEvent(ctx context.Context, evt *types.Event, at time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("audit: store not configured")
	}
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return fmt.Errorf("audit: encode attributes: %w", err)
	}
	at = at.UTC()
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO events(type, guild, user, attributes, created_at)
        VALUES(?, ?, ?, ?, ?)
    `, evt.Type, evt.Attributes["guild"], evt.Attributes["user"], string(attrs), at)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}

	switch evt.Type {
	case events.TypePointsAdjusted:
		delta, _ := strconv.ParseInt(evt.Attributes["delta"], 10, 64)
		balance, _ := strconv.ParseUint(evt.Attributes["balance"], 10, 64)
		_, err = s.db.ExecContext(ctx, `
            INSERT INTO adjustments(guild, user, delta, balance, reason, created_at)
            VALUES(?, ?, ?, ?, ?, ?)
        `, evt.Attributes["guild"], evt.Attributes["user"], delta, int64(balance), evt.Attributes["reason"], at)
		if err != nil {
			return fmt.Errorf("audit: insert adjustment: %w", err)
		}
	case events.TypeRewardRedeemed:
		cost, _ := strconv.ParseUint(evt.Attributes["cost"], 10, 64)
		balance, _ := strconv.ParseUint(evt.Attributes["balance"], 10, 64)
		_, err = s.db.ExecContext(ctx, `
            INSERT INTO redemptions(guild, user, reward, cost, balance, via, created_at)
            VALUES(?, ?, ?, ?, ?, ?, ?)
        `, evt.Attributes["guild"], evt.Attributes["user"], evt.Attributes["reward"], int64(cost), int64(balance), evt.Attributes["via"], at)
		if err != nil {
			return fmt.Errorf("audit: insert redemption: %w", err)
		}
	}
	return nil
}

// Adjustment is one row of a user's balance history.
type Adjustment struct {
	GuildID   string    `json:"guild"`
	UserID    string    `json:"user"`
	Delta     int64     `json:"delta"`
	Balance   uint64    `json:"balance"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}

// AdjustmentHistory returns the most recent balance mutations for a user,
// newest first.
func (s *Store) AdjustmentHistory(ctx context.Context, guildID, userID string, limit int) ([]Adjustment, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT guild, user, delta, balance, reason, created_at
        FROM adjustments
        WHERE guild = ? AND user = ?
        ORDER BY id DESC LIMIT ?
    `, guildID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query adjustments: %w", err)
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		var row Adjustment
		var balance int64
		if err := rows.Scan(&row.GuildID, &row.UserID, &row.Delta, &balance, &row.Reason, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan adjustment: %w", err)
		}
		row.Balance = uint64(balance)
		out = append(out, row)
	}
	return out, rows.Err()
}

// RedemptionRecord is one row of a guild's redemption history.
type RedemptionRecord struct {
	GuildID   string    `json:"guild"`
	UserID    string    `json:"user"`
	Reward    string    `json:"reward"`
	Cost      uint64    `json:"cost"`
	Balance   uint64    `json:"balance"`
	Via       string    `json:"via"`
	CreatedAt time.Time `json:"createdAt"`
}

// RedemptionHistory returns the most recent redemptions for a guild, newest
// first.
func (s *Store) RedemptionHistory(ctx context.Context, guildID string, limit int) ([]RedemptionRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("audit: store not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT guild, user, reward, cost, balance, via, created_at
        FROM redemptions
        WHERE guild = ?
        ORDER BY id DESC LIMIT ?
    `, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query redemptions: %w", err)
	}
	defer rows.Close()

	var out []RedemptionRecord
	for rows.Next() {
		var row RedemptionRecord
		var cost, balance int64
		if err := rows.Scan(&row.GuildID, &row.UserID, &row.Reward, &cost, &balance, &row.Via, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan redemption: %w", err)
		}
		row.Cost = uint64(cost)
		row.Balance = uint64(balance)
		out = append(out, row)
	}
	return out, rows.Err()
}

// EventCount reports the total number of logged events. Used by operator
// tooling and tests.
func (s *Store) EventCount(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("audit: store not configured")
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("audit: count events: %w", err)
	}
	return count, nil
}
