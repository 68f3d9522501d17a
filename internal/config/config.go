package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main kodok configuration
type Config struct {
	// Telegram
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Completion provider
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Conversation sessions and the expiry sweeper
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Reply generation retry policy
	Generation GenerationConfig `json:"generation" mapstructure:"generation"`

	// Outbound delivery queue
	Dispatch DispatchConfig `json:"dispatch" mapstructure:"dispatch"`

	// Canned responses
	Canned CannedConfig `json:"canned" mapstructure:"canned"`

	// Question of the day
	QOTD QOTDConfig `json:"qotd" mapstructure:"qotd"`

	// Fact store
	Facts FactsConfig `json:"facts" mapstructure:"facts"`

	// Admin HTTP gateway (metrics, health, event stream)
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken         string  `json:"bot_token" mapstructure:"bot_token"`
	APIEndpoint      string  `json:"api_endpoint" mapstructure:"api_endpoint"`
	Allowlist        []int64 `json:"allowlist" mapstructure:"allowlist"`       // chat IDs; empty allows all
	PollTimeout      int     `json:"poll_timeout" mapstructure:"poll_timeout"` // seconds
	SendTimeout      int     `json:"send_timeout" mapstructure:"send_timeout"` // seconds
	RegisterCommands bool    `json:"register_commands" mapstructure:"register_commands"`
}

// AIConfig selects the completion service used for replies
type AIConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Model       string  `json:"model" mapstructure:"model"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	Persona     string  `json:"persona" mapstructure:"persona"`
}

// SessionConfig holds conversation memory settings
type SessionConfig struct {
	HistoryLimit  int `json:"history_limit" mapstructure:"history_limit"`
	IdleTimeout   int `json:"idle_timeout" mapstructure:"idle_timeout"`     // seconds
	SweepInterval int `json:"sweep_interval" mapstructure:"sweep_interval"` // seconds
	SweepBatch    int `json:"sweep_batch" mapstructure:"sweep_batch"`
}

// GenerationConfig holds the reply retry policy
type GenerationConfig struct {
	MaxAttempts    int `json:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoff    int `json:"base_backoff_ms" mapstructure:"base_backoff_ms"`
	AttemptTimeout int `json:"attempt_timeout" mapstructure:"attempt_timeout"` // seconds
}

// DispatchConfig holds outbound delivery settings
type DispatchConfig struct {
	Cooldown int `json:"cooldown_ms" mapstructure:"cooldown_ms"`
}

// CannedConfig holds the fixed-phrase responder settings
type CannedConfig struct {
	Enabled      bool     `json:"enabled" mapstructure:"enabled"`
	SpecialNames []string `json:"special_names" mapstructure:"special_names"`
}

// QOTDConfig holds the question-of-the-day schedule
type QOTDConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"`
	Timezone string `json:"timezone" mapstructure:"timezone"`
	ChatID   int64  `json:"chat_id" mapstructure:"chat_id"`
	// QuestionsFile is watched and imported into the fact store on change.
	QuestionsFile string `json:"questions_file" mapstructure:"questions_file"`
}

// FactsConfig holds the fact store location
type FactsConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
}

// GatewayConfig holds the admin HTTP server settings
type GatewayConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Host    string `json:"host" mapstructure:"host"`
	Port    int    `json:"port" mapstructure:"port"`
	// Token, when set, is required as a bearer token on /status and /events.
	Token string `json:"token" mapstructure:"token"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig toggles OpenTelemetry tracing
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"` // 0 to 1
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Allowlist:        []int64{},
			PollTimeout:      60,
			SendTimeout:      30,
			RegisterCommands: true,
		},
		AI: AIConfig{
			Provider:    "anthropic",
			Model:       "claude-3-5-haiku-latest",
			MaxTokens:   512,
			Temperature: 0.7,
		},
		Session: SessionConfig{
			HistoryLimit:  5,
			IdleTimeout:   180,
			SweepInterval: 5,
			SweepBatch:    100,
		},
		Generation: GenerationConfig{
			MaxAttempts:    3,
			BaseBackoff:    1000,
			AttemptTimeout: 60,
		},
		Dispatch: DispatchConfig{
			Cooldown: 1500,
		},
		Canned: CannedConfig{
			Enabled: true,
		},
		QOTD: QOTDConfig{
			Enabled:  false,
			Schedule: "0 10 * * *",
			Timezone: "UTC",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9190,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kodok",
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks that the configuration can start a bot
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token is required")
	}

	switch c.AI.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("invalid AI provider %q (must be: anthropic, openai)", c.AI.Provider)
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required for provider %s", c.AI.Provider)
	}

	if c.Session.HistoryLimit <= 0 {
		return fmt.Errorf("session.history_limit must be positive, got %d", c.Session.HistoryLimit)
	}
	if c.Session.IdleTimeout <= 0 {
		return fmt.Errorf("session.idle_timeout must be positive, got %d", c.Session.IdleTimeout)
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session.sweep_interval must be positive, got %d", c.Session.SweepInterval)
	}
	if c.Generation.MaxAttempts <= 0 {
		return fmt.Errorf("generation.max_attempts must be positive, got %d", c.Generation.MaxAttempts)
	}
	if c.Dispatch.Cooldown < 0 {
		return fmt.Errorf("dispatch.cooldown_ms must not be negative, got %d", c.Dispatch.Cooldown)
	}

	if c.QOTD.Enabled {
		if c.QOTD.ChatID == 0 {
			return fmt.Errorf("qotd.chat_id is required when QOTD is enabled")
		}
		if c.QOTD.Timezone != "" {
			if _, err := time.LoadLocation(c.QOTD.Timezone); err != nil {
				return fmt.Errorf("invalid qotd.timezone %q: %w", c.QOTD.Timezone, err)
			}
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1, got %v", c.Tracing.SampleRatio)
	}

	if c.Gateway.Enabled && (c.Gateway.Port <= 0 || c.Gateway.Port > 65535) {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	return nil
}

// IdleTimeoutDuration returns the session idle timeout as a duration
func (s SessionConfig) IdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// SweepIntervalDuration returns the sweep interval as a duration
func (s SessionConfig) SweepIntervalDuration() time.Duration {
	return time.Duration(s.SweepInterval) * time.Second
}

// BaseBackoffDuration returns the first retry delay as a duration
func (g GenerationConfig) BaseBackoffDuration() time.Duration {
	return time.Duration(g.BaseBackoff) * time.Millisecond
}

// AttemptTimeoutDuration returns the per-attempt bound as a duration
func (g GenerationConfig) AttemptTimeoutDuration() time.Duration {
	return time.Duration(g.AttemptTimeout) * time.Second
}

// CooldownDuration returns the post-send pause as a duration
func (d DispatchConfig) CooldownDuration() time.Duration {
	return time.Duration(d.Cooldown) * time.Millisecond
}
