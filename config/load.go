package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader describes where settings come from. The zero value reads only
// defaults and the process environment.
type Loader struct {
	File     string // Optional YAML file
	EnvFile  string // Optional .env file; missing files are ignored
	SecretID string // Optional Secrets Manager secret holding env-style keys
	Region   string

	// Secrets is used instead of a client built from the default AWS config
	Secrets SecretsClient
}

// LoaderFromEnv builds a Loader from CONFIG_FILE, ENV_FILE_PATH and the
// AWS_SECRETS_MANAGER_* variables
func LoaderFromEnv() Loader {
	envFile := os.Getenv("ENV_FILE_PATH")
	if envFile == "" {
		envFile = ".env"
	}
	return Loader{
		File:     os.Getenv("CONFIG_FILE"),
		EnvFile:  envFile,
		SecretID: os.Getenv("AWS_SECRETS_MANAGER_SECRET_ID"),
		Region:   os.Getenv("AWS_SECRETS_MANAGER_REGION"),
	}
}

// Load builds a validated Config using LoaderFromEnv
func Load(ctx context.Context) (*Config, error) {
	return LoaderFromEnv().Load(ctx)
}

// Load applies defaults, then the YAML file, the .env file, the environment
// and finally the secret, and validates the result
func (l Loader) Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if l.File != "" {
		if err := loadYAML(cfg, l.File); err != nil {
			return nil, err
		}
	}

	if l.EnvFile != "" {
		if err := godotenv.Load(l.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", l.EnvFile, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	if l.SecretID != "" {
		values, err := l.fetchSecret(ctx)
		if err != nil {
			return nil, err
		}
		if err := applyEnv(cfg, mapLookup(values)); err != nil {
			return nil, fmt.Errorf("secret %s: %w", l.SecretID, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}
