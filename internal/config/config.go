package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds application configuration. Static settings come from a
// YAML file plus environment overrides; per-account and per-customer
// settings live in the database.
type Config struct {
	// Web API settings
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// Database settings
	DBPath string `yaml:"db_path"`

	// Incoming poller settings
	PollInterval Duration `yaml:"poll_interval"`

	// OpenAI settings
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	// Global Discord webhook (per-customer webhooks override this)
	DiscordWebhookURL string `yaml:"discord_webhook_url"`

	Git   GitConfig   `yaml:"git"`
	Relay RelayConfig `yaml:"relay"`
}

// Duration supports "90s" / "5m" syntax in the YAML file
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// GitConfig holds email archival settings
type GitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	ReposPath   string `yaml:"repos_path"`
}

// RelayConfig holds outgoing SMTP relay listener settings.
// Upstream forwarding targets are stored per relay user in the database.
type RelayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	Domain  string `yaml:"domain"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	dataDir := filepath.Join(homeDir, ".mail-check-ai")

	return &Config{
		Host:         "localhost",
		Port:         "8080",
		DBPath:       filepath.Join(dataDir, "mailcheck.db"),
		PollInterval: Duration(60 * time.Second),
		OpenAIModel:  "gpt-4.1",
		Git: GitConfig{
			AuthorName:  "Mail Check AI",
			AuthorEmail: "ai@mailcheck.local",
			ReposPath:   filepath.Join(dataDir, "git_repos"),
		},
		Relay: RelayConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    "2525",
			Domain:  "mailcheck.local",
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults,
// then applies environment variable overrides. A missing file is not an
// error; the defaults plus environment are used as-is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Secrets are usually supplied via environment (or a .env file
	// loaded by main) rather than the YAML file.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.OpenAIModel = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.DiscordWebhookURL = v
	}
	if v := os.Getenv("MAILCHECK_DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	return cfg, nil
}

// Validate checks that settings required at startup are present
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("openai_api_key is required (set OPENAI_API_KEY)")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	return nil
}

// Address returns the web API listen address
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// RelayAddress returns the SMTP relay listen address
func (c *Config) RelayAddress() string {
	return c.Relay.Host + ":" + c.Relay.Port
}
