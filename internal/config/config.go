// Package config holds the gateway's configuration: a JSON5 file overlaid
// with WASHDESK_* environment variables. Secrets (tokens, API keys, DSNs)
// are env-only and never written back to disk.
package config

import "time"

// Config is the full gateway configuration.
type Config struct {
	Gateway    GatewayConfig    `json:"gateway"`
	Channels   ChannelsConfig   `json:"channels"`
	Providers  ProvidersConfig  `json:"providers"`
	Sessions   SessionsConfig   `json:"sessions"`
	Dialogue   DialogueConfig   `json:"dialogue"`
	Identity   IdentityConfig   `json:"identity"`
	Resolution ResolutionConfig `json:"resolution"`
	Dedupe     DedupeConfig     `json:"dedupe"`
	Tickets    TicketsConfig    `json:"tickets"`
	Mail       MailConfig       `json:"mail"`
	Database   DatabaseConfig   `json:"database"`
	Cron       CronConfig       `json:"cron"`
	Telemetry  TelemetryConfig  `json:"telemetry"`
}

// GatewayConfig covers the ops WebSocket server.
type GatewayConfig struct {
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Token string `json:"-"` // env-only: WASHDESK_GATEWAY_TOKEN
}

// ChannelsConfig enables and parameterizes the messaging adapters.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// TelegramConfig configures the Telegram bot adapter.
type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"-"` // env-only: WASHDESK_TELEGRAM_TOKEN
	AllowFrom []string `json:"allow_from,omitempty"`
}

// DiscordConfig configures the Discord bot adapter.
type DiscordConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"-"` // env-only: WASHDESK_DISCORD_TOKEN
	AllowFrom []string `json:"allow_from,omitempty"`
}

// ProvidersConfig covers the AI resolution providers.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `json:"openai"`

	PollIntervalMs  int `json:"poll_interval_ms"`  // assistant run polling
	PollMaxAttempts int `json:"poll_max_attempts"` // hard cap, exceeding = strategy failure
	SingleShotSec   int `json:"single_shot_sec"`   // classification timeout
}

// OpenAIConfig holds credentials and model selection for the OpenAI-style API.
type OpenAIConfig struct {
	APIKey      string `json:"-"` // env-only: WASHDESK_OPENAI_API_KEY
	APIBase     string `json:"api_base,omitempty"`
	Model       string `json:"model,omitempty"`
	AssistantID string `json:"assistant_id,omitempty"`
}

// SessionsConfig bounds session lifetime and sweep cadence.
type SessionsConfig struct {
	MaxAgeHours        int `json:"max_age_hours"`
	FragileIdleMinutes int `json:"fragile_idle_minutes"`
	SweepMinutes       int `json:"sweep_minutes"`
}

// DialogueConfig tunes the state machine.
type DialogueConfig struct {
	GraceSeconds   int `json:"grace_seconds"`
	MinProblemText int `json:"min_problem_text"`
	MinGuestText   int `json:"min_guest_text"`
	MaxIDAttempts  int `json:"max_id_attempts"`
}

// IdentityConfig locates the customer directory and sets phone normalization.
type IdentityConfig struct {
	DirectoryPath string `json:"directory_path"`
	CountryCode   string `json:"country_code"`
	TrunkPrefix   string `json:"trunk_prefix"`
	WatchDir      bool   `json:"watch_directory"`
}

// ResolutionConfig locates the remedy catalog.
type ResolutionConfig struct {
	CatalogPath  string `json:"catalog_path"`
	WatchCatalog bool   `json:"watch_catalog"`
}

// DedupeConfig bounds the inbound idempotency cache.
type DedupeConfig struct {
	TTLMinutes int `json:"ttl_minutes"`
	MaxEntries int `json:"max_entries"`
}

// TicketsConfig controls ticket identifier issuing.
type TicketsConfig struct {
	Prefix string `json:"prefix"`
	Floor  int64  `json:"floor"`
}

// MailConfig points operational mail at the right inboxes. Delivery
// mechanics live behind the dispatcher's Mailer.
type MailConfig struct {
	OperationsAddress string `json:"operations_address"`
	TechniciansAddr   string `json:"technicians_address"`
	FromAddress       string `json:"from_address"`
}

// DatabaseConfig selects the storage backend. "standalone" uses a local
// SQLite file; "managed" uses PostgreSQL.
type DatabaseConfig struct {
	Mode        string `json:"mode"`
	SQLitePath  string `json:"sqlite_path"`
	PostgresDSN string `json:"-"` // env-only: WASHDESK_POSTGRES_DSN
}

// CronConfig schedules the nightly summary job.
type CronConfig struct {
	SummaryEnabled  bool   `json:"summary_enabled"`
	SummarySchedule string `json:"summary_schedule"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Protocol    string `json:"protocol"` // "grpc" or "http"
	ServiceName string `json:"service_name"`
	Insecure    bool   `json:"insecure"`
}

// Default returns a Config with the reference values.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 18830,
		},
		Providers: ProvidersConfig{
			OpenAI:          OpenAIConfig{Model: "gpt-4o-mini"},
			PollIntervalMs:  1500,
			PollMaxAttempts: 20,
			SingleShotSec:   12,
		},
		Sessions: SessionsConfig{
			MaxAgeHours:        24,
			FragileIdleMinutes: 15,
			SweepMinutes:       5,
		},
		Dialogue: DialogueConfig{
			GraceSeconds:   60,
			MinProblemText: 8,
			MinGuestText:   4,
			MaxIDAttempts:  2,
		},
		Identity: IdentityConfig{
			DirectoryPath: "customers.json",
			CountryCode:   "972",
			TrunkPrefix:   "0",
		},
		Resolution: ResolutionConfig{
			CatalogPath:  "catalog.json",
			WatchCatalog: true,
		},
		Dedupe: DedupeConfig{
			TTLMinutes: 20,
			MaxEntries: 5000,
		},
		Tickets: TicketsConfig{
			Prefix: "SR-",
			Floor:  5000,
		},
		Database: DatabaseConfig{
			Mode:       "standalone",
			SQLitePath: "washdesk.db",
		},
		Cron: CronConfig{
			SummarySchedule: "0 7 * * *",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "washdesk",
		},
	}
}

// Grace returns the escalation grace period.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Dialogue.GraceSeconds) * time.Second
}

// SessionMaxAge returns the absolute session age cap.
func (c *Config) SessionMaxAge() time.Duration {
	return time.Duration(c.Sessions.MaxAgeHours) * time.Hour
}

// FragileIdle returns the fragile-stage inactivity cap.
func (c *Config) FragileIdle() time.Duration {
	return time.Duration(c.Sessions.FragileIdleMinutes) * time.Minute
}

// SweepInterval returns the session sweep cadence.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sessions.SweepMinutes) * time.Minute
}

// DedupeTTL returns the inbound dedupe freshness window.
func (c *Config) DedupeTTL() time.Duration {
	return time.Duration(c.Dedupe.TTLMinutes) * time.Minute
}

// PollInterval returns the assistant run polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Providers.PollIntervalMs) * time.Millisecond
}

// SingleShotTimeout returns the classification strategy timeout.
func (c *Config) SingleShotTimeout() time.Duration {
	return time.Duration(c.Providers.SingleShotSec) * time.Second
}

// Managed reports whether the gateway runs against PostgreSQL.
func (c *Config) Managed() bool {
	return c.Database.Mode == "managed"
}
