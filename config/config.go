package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config carries everything the process needs at startup. Environment
// variables win over the optional YAML file.
type Config struct {
	Port              string
	BaseURL           string
	DatabaseURL       string
	RedisURL          string
	EncryptionKey     string
	SlackClientID     string
	SlackClientSecret string

	SweepInterval    time.Duration
	DefaultQuestions []string
}

type fileConfig struct {
	SweepInterval    string   `yaml:"sweep_interval"`
	DefaultQuestions []string `yaml:"default_questions"`
}

const defaultConfigFile = "standupbrief.yml"

// Load reads .env (when present), the optional standupbrief.yml, and the
// process environment.
func Load() (*Config, error) {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		BaseURL:           os.Getenv("BASE_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		EncryptionKey:     os.Getenv("ENCRYPTION_KEY"),
		SlackClientID:     os.Getenv("SLACK_CLIENT_ID"),
		SlackClientSecret: os.Getenv("SLACK_CLIENT_SECRET"),
		SweepInterval:     time.Minute,
		DefaultQuestions: []string{
			"What did you do yesterday?",
			"What will you do today?",
			"Anything blocking your progress?",
		},
	}

	if err := cfg.applyFile(defaultConfigFile); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is not set")
	}

	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.SweepInterval != "" {
		d, err := time.ParseDuration(fc.SweepInterval)
		if err != nil {
			return fmt.Errorf("config: invalid sweep_interval %q: %w", fc.SweepInterval, err)
		}
		c.SweepInterval = d
	}
	if len(fc.DefaultQuestions) > 0 {
		c.DefaultQuestions = fc.DefaultQuestions
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
