package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress           string `toml:"RPCAddress"`
	DataDir              string `toml:"DataDir"`
	AuditDatabasePath    string `toml:"AuditDatabasePath"`
	GuildSeedFile        string `toml:"GuildSeedFile"`
	ServiceName          string `toml:"ServiceName"`
	Environment          string `toml:"Environment"`
	AuthIssuer           string `toml:"AuthIssuer"`
	AuthSecretEnv        string `toml:"AuthSecretEnv"`
	VouchCooldownSeconds int    `toml:"VouchCooldownSeconds"`
	SessionTimeoutSecs   int    `toml:"SessionTimeoutSeconds"`

	DefaultVouchRoles []string `toml:"DefaultVouchRoles"`

	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. Zero values are normalized so callers never see them.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	normalize(cfg)
	return cfg, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:           ":8080",
		DataDir:              "./vouchbank-data",
		AuditDatabasePath:    "./vouchbank-data/audit.db",
		ServiceName:          "vouchbankd",
		Environment:          "local",
		AuthIssuer:           "vouchbank",
		AuthSecretEnv:        "VOUCHBANK_AUTH_SECRET",
		VouchCooldownSeconds: 300,
		SessionTimeoutSecs:   300,
		DefaultVouchRoles:    []string{"CHEF"},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vouchbank-data"
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "vouchbankd"
	}
	if strings.TrimSpace(cfg.AuthSecretEnv) == "" {
		cfg.AuthSecretEnv = "VOUCHBANK_AUTH_SECRET"
	}
	if cfg.VouchCooldownSeconds <= 0 {
		cfg.VouchCooldownSeconds = 300
	}
	if cfg.SessionTimeoutSecs <= 0 {
		cfg.SessionTimeoutSecs = 300
	}
	if cfg.DefaultVouchRoles == nil {
		cfg.DefaultVouchRoles = []string{"CHEF"}
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
