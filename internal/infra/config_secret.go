package infra

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SecretConfig is a separate credentials file (secrets/testnet.yaml,
// secrets/real.yaml) kept out of the main config.
type SecretConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
}

// LoadSecretConfig loads API keys from a separate yaml file.
// It returns error if file is missing (Fail Fast).
func LoadSecretConfig(path string) (*SecretConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret config: %w", err)
	}

	var cfg SecretConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse secret config: %w", err)
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("secret config %s: api_key and api_secret are required", path)
	}
	return &cfg, nil
}

// Apply fills empty credentials of ex. Environment values set earlier win.
func (s *SecretConfig) Apply(ex *ExchangeConfig) {
	if ex.APIKey == "" {
		ex.APIKey = s.APIKey
	}
	if ex.APISecret == "" {
		ex.APISecret = s.APISecret
	}
}
