package core

import (
	"encoding/json"
	"fmt"
	"strings"

	"vouchbank/native/ledger"
	"vouchbank/storage"
)

const (
	keyPrefixBalances = "points/"
	keyPrefixRewards  = "rewards/"
	keyPrefixRoles    = "roles/"
	keyPrefixRoute    = "route/"
)

// GuildStore persists the per-guild ledger documents as JSON values in the
// key-value store, one key per guild per table. It implements ledger.Store.
type GuildStore struct {
	db storage.Database
}

// NewGuildStore wraps the database.
func NewGuildStore(db storage.Database) *GuildStore {
	return &GuildStore{db: db}
}

func (s *GuildStore) put(prefix, guildID string, value interface{}) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s%s: %w", prefix, guildID, err)
	}
	if err := s.db.Put([]byte(prefix+guildID), encoded); err != nil {
		return fmt.Errorf("put %s%s: %w", prefix, guildID, err)
	}
	return nil
}

// SaveBalances writes the guild's full balance document.
func (s *GuildStore) SaveBalances(guildID string, balances map[string]uint64) error {
	return s.put(keyPrefixBalances, guildID, balances)
}

// SaveRewards writes the guild's full reward catalog.
func (s *GuildStore) SaveRewards(guildID string, rewards map[string]ledger.Reward) error {
	return s.put(keyPrefixRewards, guildID, rewards)
}

// SaveVouchRoles writes the guild's valid-role list.
func (s *GuildStore) SaveVouchRoles(guildID string, roles []string) error {
	return s.put(keyPrefixRoles, guildID, roles)
}

// SaveVerifyChannel writes the guild's verification route. An empty channel
// clears the stored route.
func (s *GuildStore) SaveVerifyChannel(guildID string, channelID string) error {
	if channelID == "" {
		if err := s.db.Delete([]byte(keyPrefixRoute + guildID)); err != nil {
			return fmt.Errorf("delete %s%s: %w", keyPrefixRoute, guildID, err)
		}
		return nil
	}
	return s.put(keyPrefixRoute, guildID, channelID)
}

// LoadAll reads every stored guild document and assembles per-guild
// snapshots for engine hydration at startup.
func (s *GuildStore) LoadAll() (map[string]ledger.Snapshot, error) {
	snapshots := make(map[string]ledger.Snapshot)
	ensure := func(guildID string) ledger.Snapshot {
		return snapshots[guildID]
	}

	err := s.db.IteratePrefix([]byte(keyPrefixBalances), func(key, value []byte) error {
		guildID := strings.TrimPrefix(string(key), keyPrefixBalances)
		snap := ensure(guildID)
		if err := json.Unmarshal(value, &snap.Balances); err != nil {
			return fmt.Errorf("decode balances for %s: %w", guildID, err)
		}
		snapshots[guildID] = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.IteratePrefix([]byte(keyPrefixRewards), func(key, value []byte) error {
		guildID := strings.TrimPrefix(string(key), keyPrefixRewards)
		snap := ensure(guildID)
		if err := json.Unmarshal(value, &snap.Rewards); err != nil {
			return fmt.Errorf("decode rewards for %s: %w", guildID, err)
		}
		snapshots[guildID] = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.IteratePrefix([]byte(keyPrefixRoles), func(key, value []byte) error {
		guildID := strings.TrimPrefix(string(key), keyPrefixRoles)
		snap := ensure(guildID)
		if err := json.Unmarshal(value, &snap.VouchRoles); err != nil {
			return fmt.Errorf("decode roles for %s: %w", guildID, err)
		}
		snapshots[guildID] = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.IteratePrefix([]byte(keyPrefixRoute), func(key, value []byte) error {
		guildID := strings.TrimPrefix(string(key), keyPrefixRoute)
		snap := ensure(guildID)
		if err := json.Unmarshal(value, &snap.VerifyChannel); err != nil {
			return fmt.Errorf("decode route for %s: %w", guildID, err)
		}
		snapshots[guildID] = snap
		return nil
	})
	if err != nil {
		return nil, err
	}

	return snapshots, nil
}
