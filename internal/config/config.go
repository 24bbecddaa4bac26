package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Operator is a person who classifies transactions in their own Discord channel.
type Operator struct {
	Name      string `koanf:"name"`
	ChannelID string `koanf:"channel_id"`
	UserID    string `koanf:"user_id"`
}

type Config struct {
	// Discord Bot
	DiscordToken string `koanf:"discord_token"`

	// Discord OAuth2
	DiscordClientID     string `koanf:"discord_client_id"`
	DiscordClientSecret string `koanf:"discord_client_secret"`
	DiscordRedirectURI  string `koanf:"discord_redirect_uri"`

	// Storage
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// Web Server
	WebBind      string `koanf:"web_bind"`
	WebUIBaseURL string `koanf:"-"`
	JWTSecret    string `koanf:"jwt_secret"`
	IngestToken  string `koanf:"ingest_token"`

	TaxonomyPath    string `koanf:"taxonomy_path"`
	AlertWebhookURL string `koanf:"alert_webhook_url"`
	Timezone        string `koanf:"timezone"`

	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	RetryMaxAttempts uint          `koanf:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay    time.Duration `koanf:"retry_max_delay"`
	ReviewInterval   time.Duration `koanf:"review_interval"`

	Operators []Operator `koanf:"operators"`
}

// Load reads .env, then the optional YAML file at path, then the environment.
func Load(path string) (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	k := koanf.New(".")
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if raw := os.Getenv("OPERATORS"); raw != "" {
		ops, err := ParseOperators(raw)
		if err != nil {
			return nil, err
		}
		cfg.Operators = ops
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps DISCORD_TOKEN to discord_token. OPERATORS is parsed separately.
func envKey(s string) string {
	if s == "OPERATORS" {
		return ""
	}
	return strings.ToLower(s)
}

func (c *Config) applyDefaults() {
	if c.WebBind == "" {
		c.WebBind = "0.0.0.0:3000"
	}
	if c.DiscordRedirectURI == "" {
		c.DiscordRedirectURI = "http://localhost:3000/api/auth/callback"
	}
	if c.JWTSecret == "" {
		c.JWTSecret = "dev-only-change-me"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Timezone == "" {
		c.Timezone = "America/Bogota"
	}
	if c.RetryMaxAttempts == 0 {
		c.RetryMaxAttempts = 5
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = 30 * time.Second
	}
	if c.ReviewInterval == 0 {
		c.ReviewInterval = time.Hour
	}
	c.WebUIBaseURL = extractBaseURL(c.DiscordRedirectURI)
}

func (c *Config) validate() error {
	if c.RetryBaseDelay > c.RetryMaxDelay {
		return fmt.Errorf("RETRY_BASE_DELAY must not exceed RETRY_MAX_DELAY")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	seen := map[string]bool{}
	for _, op := range c.Operators {
		if op.Name == "" || op.ChannelID == "" {
			return fmt.Errorf("operators need a name and a channel id")
		}
		if seen[op.Name] {
			return fmt.Errorf("operator %s listed twice", op.Name)
		}
		seen[op.Name] = true
	}
	return nil
}

// RequireDatabase checks the settings needed by commands touching Postgres.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// RequireBot checks the settings needed to run the bot and its web API.
func (c *Config) RequireBot() error {
	if c.DiscordToken == "" {
		return fmt.Errorf("DISCORD_TOKEN is required")
	}
	if err := c.RequireDatabase(); err != nil {
		return err
	}
	if c.DiscordClientID == "" {
		return fmt.Errorf("DISCORD_CLIENT_ID is required")
	}
	if c.DiscordClientSecret == "" {
		return fmt.Errorf("DISCORD_CLIENT_SECRET is required")
	}
	if len(c.Operators) == 0 {
		return fmt.Errorf("OPERATORS is required")
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) OperatorByName(name string) (Operator, bool) {
	for _, op := range c.Operators {
		if strings.EqualFold(op.Name, name) {
			return op, true
		}
	}
	return Operator{}, false
}

func (c *Config) OperatorByChannel(channelID string) (Operator, bool) {
	for _, op := range c.Operators {
		if op.ChannelID == channelID {
			return op, true
		}
	}
	return Operator{}, false
}

func (c *Config) OperatorByUser(userID string) (Operator, bool) {
	for _, op := range c.Operators {
		if op.UserID != "" && op.UserID == userID {
			return op, true
		}
	}
	return Operator{}, false
}

// ParseOperators reads "Name:channelID:userID,Name:channelID".
func ParseOperators(raw string) ([]Operator, error) {
	var ops []Operator
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("OPERATORS entry %q must be name:channel[:user]", part)
		}
		op := Operator{Name: strings.TrimSpace(fields[0]), ChannelID: strings.TrimSpace(fields[1])}
		if len(fields) == 3 {
			op.UserID = strings.TrimSpace(fields[2])
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func extractBaseURL(redirectURI string) string {
	// e.g., "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}
	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
