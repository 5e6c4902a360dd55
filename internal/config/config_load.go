package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error: env-only deployments are supported.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values; secrets only exist here.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("WASHDESK_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("WASHDESK_OPENAI_API_BASE", &c.Providers.OpenAI.APIBase)
	envStr("WASHDESK_OPENAI_ASSISTANT_ID", &c.Providers.OpenAI.AssistantID)
	envStr("WASHDESK_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("WASHDESK_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("WASHDESK_DISCORD_TOKEN", &c.Channels.Discord.Token)

	// Channels auto-enable when their credentials arrive via env.
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}

	envStr("WASHDESK_HOST", &c.Gateway.Host)
	if v := os.Getenv("WASHDESK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	envStr("WASHDESK_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("WASHDESK_MODE", &c.Database.Mode)
	envStr("WASHDESK_SQLITE_PATH", &c.Database.SQLitePath)

	envStr("WASHDESK_DIRECTORY_PATH", &c.Identity.DirectoryPath)
	envStr("WASHDESK_CATALOG_PATH", &c.Resolution.CatalogPath)

	envStr("WASHDESK_MAIL_OPERATIONS", &c.Mail.OperationsAddress)
	envStr("WASHDESK_MAIL_TECHNICIANS", &c.Mail.TechniciansAddr)
	envStr("WASHDESK_MAIL_FROM", &c.Mail.FromAddress)

	envStr("WASHDESK_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("WASHDESK_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("WASHDESK_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("WASHDESK_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("WASHDESK_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Save writes the config to a JSON file. Secrets carry `json:"-"` tags and
// never land on disk.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
