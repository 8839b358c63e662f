package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, 300, cfg.VouchCooldownSeconds)
	require.Equal(t, []string{"CHEF"}, cfg.DefaultVouchRoles)

	// The default file was written and loads back identically.
	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, reloaded)
}

func TestLoadNormalizesZeroValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
RPCAddress = ""
VouchCooldownSeconds = 0
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.RPCAddress)
	require.Equal(t, 300, cfg.VouchCooldownSeconds)
	require.Equal(t, 300, cfg.SessionTimeoutSecs)
}

func TestLoadRespectsExplicitValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
RPCAddress = ":9090"
VouchCooldownSeconds = 60
DefaultVouchRoles = ["CHEF", "Baker"]

[log]
File = "/var/log/vouchbankd.log"
MaxSizeMB = 25
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.RPCAddress)
	require.Equal(t, 60, cfg.VouchCooldownSeconds)
	require.Equal(t, []string{"CHEF", "Baker"}, cfg.DefaultVouchRoles)
	require.Equal(t, "/var/log/vouchbankd.log", cfg.Log.File)
	require.Equal(t, 25, cfg.Log.MaxSizeMB)
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
guilds:
  - id: g1
    verifyChannel: verify
    vouchRoles: [CHEF, Baker]
    rewards:
      - name: Sticker
        cost: 3
  - id: g2
`), 0o644))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Guilds, 2)
	require.Equal(t, "verify", seed.Guilds[0].VerifyChannel)
	require.Equal(t, uint64(3), seed.Guilds[0].Rewards[0].Cost)
}

func TestLoadSeedRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
guilds:
  - id: g1
    rewards:
      - name: ""
        cost: 0
`), 0o644))

	_, err := LoadSeed(path)
	require.Error(t, err)
}
