// Package config loads the static configuration the pipeline starts from:
// source credentials, language-model selection, scoring weights, and tunables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elonfeng/narradar/pkg/llm"
)

// ErrConfig marks a configuration problem fatal enough that the pipeline
// never starts.
var ErrConfig = errors.New("invalid configuration")

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Report   ReportConfig   `yaml:"report"`
	Sources  SourcesConfig  `yaml:"sources"`
	LLM      llm.Config     `yaml:"llm"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Server   ServerConfig   `yaml:"server"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// ScheduleConfig controls the daemon run cadence.
type ScheduleConfig struct {
	Interval string `yaml:"interval"`
}

// ParseInterval parses the schedule interval, defaulting to 6h.
func (s ScheduleConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ReportConfig configures the persisted report document.
type ReportConfig struct {
	Path string `yaml:"path"`
}

// SourcesConfig holds configuration for all signal sources.
type SourcesConfig struct {
	OnChain OnChainConfig `yaml:"onchain"`
	GitHub  GitHubConfig  `yaml:"github"`
	Twitter TwitterConfig `yaml:"twitter"`
}

// OnChainConfig for the Solana on-chain adapter.
type OnChainConfig struct {
	Enabled      bool   `yaml:"enabled"`
	RPCURL       string `yaml:"rpc_url"`
	HeliusAPIKey string `yaml:"helius_api_key"`
}

// GitHubConfig for the developer-activity adapter.
type GitHubConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// TwitterConfig for the social adapter.
type TwitterConfig struct {
	Enabled     bool     `yaml:"enabled"`
	BearerToken string   `yaml:"bearer_token"`
	NitterURL   string   `yaml:"nitter_url"`
	KOLs        []string `yaml:"kols"`
}

// PipelineConfig tunes the run itself.
type PipelineConfig struct {
	PeriodDays        int     `yaml:"period_days"`
	IdeasPerNarrative int     `yaml:"ideas_per_narrative"`
	GenConcurrency    int64   `yaml:"gen_concurrency"`
	MinStrength       float64 `yaml:"min_strength"`
	MinSignals        int     `yaml:"min_signals"`
}

// ScoringConfig holds the fixed scorer weights. They must sum to 1.
type ScoringConfig struct {
	RecencyWeight    float64 `yaml:"recency_weight"`
	AuthorityWeight  float64 `yaml:"authority_weight"`
	EngagementWeight float64 `yaml:"engagement_weight"`
}

// ServerConfig configures the HTTP status server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// AlertsConfig configures report notifications.
type AlertsConfig struct {
	Slack   WebhookTarget `yaml:"slack"`
	Discord WebhookTarget `yaml:"discord"`
	Webhook WebhookTarget `yaml:"webhook"`

	// MinStrength gates which narratives produce notifications.
	MinStrength float64 `yaml:"min_strength"`
}

// WebhookTarget is one outbound notification destination.
type WebhookTarget struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	// Secret, when set, is used to HMAC-sign outbound payloads. Only the
	// generic webhook target honors it.
	Secret string `yaml:"secret"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./narradar.db"},
		Report:   ReportConfig{Path: "./latest_report.json"},
		Schedule: ScheduleConfig{Interval: "6h"},
		Sources: SourcesConfig{
			OnChain: OnChainConfig{Enabled: true},
			GitHub:  GitHubConfig{Enabled: true},
			Twitter: TwitterConfig{Enabled: true, NitterURL: "https://nitter.net"},
		},
		LLM: llm.Config{
			Provider: "openrouter",
			Model:    "anthropic/claude-sonnet-4",
		},
		Pipeline: PipelineConfig{
			PeriodDays:        14,
			IdeasPerNarrative: 4,
			GenConcurrency:    3,
			MinStrength:       0.15,
			MinSignals:        2,
		},
		Scoring: ScoringConfig{
			RecencyWeight:    0.35,
			AuthorityWeight:  0.35,
			EngagementWeight: 0.30,
		},
		Server: ServerConfig{Port: 8080},
		Alerts: AlertsConfig{MinStrength: 0.6},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NARRADAR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("NARRADAR_REPORT_PATH"); v != "" {
		cfg.Report.Path = v
	}
	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		cfg.Sources.OnChain.RPCURL = v
	}
	if v := os.Getenv("HELIUS_API_KEY"); v != "" {
		cfg.Sources.OnChain.HeliusAPIKey = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Sources.GitHub.Token = v
	}
	if v := os.Getenv("TWITTER_BEARER_TOKEN"); v != "" {
		cfg.Sources.Twitter.BearerToken = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "anthropic"
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "gemini"
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Provider = "openrouter"
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack = WebhookTarget{Enabled: true, URL: v}
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord = WebhookTarget{Enabled: true, URL: v}
	}
}

// Validate checks configuration completeness without running the pipeline.
// It returns non-fatal warnings; the error wraps ErrConfig and means the
// pipeline must not start.
func (c *Config) Validate() ([]string, error) {
	var warnings []string

	if !c.Sources.OnChain.Enabled && !c.Sources.GitHub.Enabled && !c.Sources.Twitter.Enabled {
		return nil, fmt.Errorf("%w: no signal sources enabled", ErrConfig)
	}
	if c.LLM.APIKey == "" {
		return nil, fmt.Errorf("%w: no LLM API key set, narrative analysis cannot run", ErrConfig)
	}

	sum := c.Scoring.RecencyWeight + c.Scoring.AuthorityWeight + c.Scoring.EngagementWeight
	if sum != 0 && (sum < 0.999 || sum > 1.001) {
		return nil, fmt.Errorf("%w: scoring weights sum to %.3f, want 1", ErrConfig, sum)
	}

	if c.Sources.OnChain.Enabled && c.Sources.OnChain.HeliusAPIKey == "" && c.Sources.OnChain.RPCURL == "" {
		warnings = append(warnings, "using public Solana RPC - rate limits apply, set HELIUS_API_KEY for better performance")
	}
	if c.Sources.GitHub.Enabled && c.Sources.GitHub.Token == "" {
		warnings = append(warnings, "GITHUB_TOKEN not set - rate limits will be restrictive (60 req/hour)")
	}
	if c.Sources.Twitter.Enabled && c.Sources.Twitter.BearerToken == "" {
		warnings = append(warnings, "TWITTER_BEARER_TOKEN not set - falling back to nitter RSS with reduced signal quality")
	}

	return warnings, nil
}

// ResolvedRPCURL resolves the effective Solana RPC endpoint, preferring a
// Helius key when present.
func (o OnChainConfig) ResolvedRPCURL() string {
	if o.RPCURL != "" {
		return o.RPCURL
	}
	if o.HeliusAPIKey != "" {
		return "https://mainnet.helius-rpc.com/?api-key=" + o.HeliusAPIKey
	}
	return ""
}
