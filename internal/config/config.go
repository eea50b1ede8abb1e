package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Host      HostConfig      `yaml:"host"`
	League    LeagueConfig    `yaml:"league"`
	Match     MatchConfig     `yaml:"match"`
	Database  DatabaseConfig  `yaml:"database"`
	Recording RecordingConfig `yaml:"recording"`
}

// HostConfig holds the game-server feed settings
type HostConfig struct {
	FeedURL       string        `yaml:"feed_url"`
	FeedSecret    string        `yaml:"feed_secret"`
	ServerAddress string        `yaml:"server_address"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// LeagueConfig holds the league service settings
type LeagueConfig struct {
	ReportURL      string        `yaml:"report_url"`
	QueryURL       string        `yaml:"query_url"`
	ReportMatches  *bool         `yaml:"report_matches"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Rotational     bool          `yaml:"rotational"`
	MapchangePath  string        `yaml:"mapchange_path"`
}

// MatchConfig holds the match lifecycle settings
type MatchConfig struct {
	DefaultDuration  time.Duration `yaml:"default_duration"`
	RollCallDeadline time.Duration `yaml:"roll_call_deadline"`
	RejoinGrace      time.Duration `yaml:"rejoin_grace"`
	AutoTeam         bool          `yaml:"auto_team"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RecordingConfig holds the recording output settings
type RecordingConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads configuration from a YAML file. Broken values degrade the
// feature they belong to and are logged; only an unreadable file is fatal.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host.TokenDuration == 0 {
		c.Host.TokenDuration = time.Hour
	}
	if c.League.RequestTimeout == 0 {
		c.League.RequestTimeout = 15 * time.Second
	}
	if c.League.ReportMatches == nil {
		enabled := true
		c.League.ReportMatches = &enabled
	}
	if c.Match.DefaultDuration == 0 {
		c.Match.DefaultDuration = 30 * time.Minute
	}
	if c.Match.DefaultDuration < time.Minute {
		log.Printf("config: default_duration %s is below one minute, using 30m", c.Match.DefaultDuration)
		c.Match.DefaultDuration = 30 * time.Minute
	}
	if c.Match.RollCallDeadline == 0 {
		c.Match.RollCallDeadline = 90 * time.Second
	}
	if c.Match.RejoinGrace == 0 {
		c.Match.RejoinGrace = 60 * time.Second
	}
	if c.Database.Path == "" {
		c.Database.Path = "/var/lib/overseer/overseer.db"
	}
	// An empty Recording.Dir means recording is off

	// A missing report URL disables reporting only; the rest of the
	// process keeps working
	if c.ReportingEnabled() && c.League.ReportURL == "" {
		log.Printf("config: report_matches is enabled but league.report_url is empty, match reporting disabled")
		disabled := false
		c.League.ReportMatches = &disabled
	}
	if c.League.QueryURL == "" && c.League.ReportURL != "" {
		c.League.QueryURL = c.League.ReportURL
	}
}

// ReportingEnabled reports whether finished matches go to the league
func (c *Config) ReportingEnabled() bool {
	return c.League.ReportMatches != nil && *c.League.ReportMatches
}

// Save writes the configuration back out as YAML
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
