package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// GuildSeed describes the initial state for one guild. Seeding only fills
// gaps: it never overwrites configuration a guild already has.
type GuildSeed struct {
	ID            string       `yaml:"id"`
	VerifyChannel string       `yaml:"verifyChannel,omitempty"`
	VouchRoles    []string     `yaml:"vouchRoles,omitempty"`
	Rewards       []RewardSeed `yaml:"rewards,omitempty"`
}

type RewardSeed struct {
	Name string `yaml:"name"`
	Cost uint64 `yaml:"cost"`
}

// Seed is the optional YAML bootstrap file loaded at daemon startup.
type Seed struct {
	Guilds []GuildSeed `yaml:"guilds"`
}

// LoadSeed reads and validates a guild seed file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	seed := &Seed{}
	if err := yaml.Unmarshal(raw, seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, guild := range seed.Guilds {
		if guild.ID == "" {
			return nil, fmt.Errorf("seed guild %d missing id", i)
		}
		for _, reward := range guild.Rewards {
			if reward.Name == "" || reward.Cost == 0 {
				return nil, fmt.Errorf("seed guild %s has invalid reward %q", guild.ID, reward.Name)
			}
		}
	}
	return seed, nil
}
