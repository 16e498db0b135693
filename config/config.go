package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RippnerLabs/stervault/crypto"
	"github.com/RippnerLabs/stervault/native/lending"

	"github.com/BurntSushi/toml"
)

// Config is the root service configuration, loaded from TOML.
type Config struct {
	ListenAddress     string `toml:"ListenAddress"`
	DataDir           string `toml:"DataDir"`
	Environment       string `toml:"Environment"`
	VaultKeystorePath string `toml:"VaultKeystorePath"`

	Log     Log            `toml:"log"`
	Gateway Gateway        `toml:"gateway"`
	Oracle  Oracle         `toml:"oracle"`
	Lending lending.Config `toml:"lending"`
	Quota   Quota          `toml:"quota"`
}

// Load reads the configuration at path, creating a default file (and vault
// keystore) on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if cfg.VaultKeystorePath == "" {
		if err := ensureVaultKeystore(path, cfg); err != nil {
			return nil, err
		}
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./stervault-data"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if strings.TrimSpace(cfg.Oracle.Provider) == "" {
		cfg.Oracle.Provider = ProviderManual
	}
	if cfg.Gateway.AdminScopes == nil {
		cfg.Gateway.AdminScopes = []string{"lending.admin"}
	}
}

// ensureVaultKeystore generates the vault custody key on first run and
// persists its location back into the config file.
func ensureVaultKeystore(configPath string, cfg *Config) error {
	keystorePath := defaultKeystorePath(configPath)
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	cfg.VaultKeystorePath = keystorePath
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:     ":8080",
		DataDir:           "./stervault-data",
		Environment:       "dev",
		VaultKeystorePath: keystorePath,
		Oracle:            Oracle{Provider: ProviderManual},
		Gateway:           Gateway{AdminScopes: []string{"lending.admin"}},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	return filepath.Join(dir, "vault.keystore")
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
