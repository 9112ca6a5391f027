// Package config loads settings from the environment, an optional .env file
// and an optional YAML or TOML file.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	GitHub      GitHub        `yaml:"github" toml:"github"`
	Discourse   Discourse     `yaml:"discourse" toml:"discourse"`
	HTTPTimeout time.Duration `yaml:"http_timeout" toml:"http_timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
}

type GitHub struct {
	Token            string        `yaml:"token" toml:"token" env:"GITHUB_TOKEN"`
	Repo             string        `yaml:"repo" toml:"repo" env:"GITHUB_REPO" env-default:"llvm/llvm-project"`
	APIURL           string        `yaml:"api_url" toml:"api_url" env:"GITHUB_API_URL"`
	TokenFile        string        `yaml:"token_file" toml:"token_file" env:"GITHUB_TOKEN_FILE" env-default:".github_token"`
	MaxRateLimitWait time.Duration `yaml:"max_rate_limit_wait" toml:"max_rate_limit_wait" env:"GITHUB_MAX_RATE_LIMIT_WAIT" env-default:"0s"`
}

type Discourse struct {
	URL             string        `yaml:"url" toml:"url" env:"DISCOURSE_URL" env-default:"https://discourse.llvm.org"`
	APIUsername     string        `yaml:"api_username" toml:"api_username" env:"DISCOURSE_API_USERNAME"`
	APIKey          string        `yaml:"api_key" toml:"api_key" env:"DISCOURSE_API_KEY"`
	CredentialsFile string        `yaml:"credentials_file" toml:"credentials_file" env:"DISCOURSE_CREDENTIALS_FILE" env-default:".discourse_api_credentials"`
	PageDelay       time.Duration `yaml:"page_delay" toml:"page_delay" env:"DISCOURSE_PAGE_DELAY" env-default:"500ms"`
}

// envDir returns the directory holding the .env file: the executable's
// directory first, then the working directory.
func envDir() (string, error) {
	if exePath, err := os.Executable(); err == nil {
		dir := filepath.Dir(exePath)
		if _, err := os.Stat(filepath.Join(dir, ".env")); err == nil {
			return dir, nil
		}
	}
	return os.Getwd()
}

// Load reads the configuration. Variables from a .env file never override
// variables already set in the process environment. A non-empty path names a
// YAML or TOML file whose values are in turn overridden by the environment.
func Load(path string, logger *log.Logger) (*Config, error) {
	dir, err := envDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil {
		logger.Printf("No .env file loaded from %s", dir)
	}

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return &cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}
	return &cfg, nil
}
