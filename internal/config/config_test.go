package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultReferenceValues(t *testing.T) {
	cfg := Default()
	if cfg.Dialogue.GraceSeconds != 60 {
		t.Errorf("grace = %d, want 60", cfg.Dialogue.GraceSeconds)
	}
	if cfg.Sessions.MaxAgeHours != 24 || cfg.Sessions.FragileIdleMinutes != 15 {
		t.Errorf("session caps = %d/%d, want 24h/15m", cfg.Sessions.MaxAgeHours, cfg.Sessions.FragileIdleMinutes)
	}
	if cfg.Tickets.Prefix != "SR-" || cfg.Tickets.Floor != 5000 {
		t.Errorf("tickets = %q/%d, want SR-/5000", cfg.Tickets.Prefix, cfg.Tickets.Floor)
	}
	if cfg.Managed() {
		t.Error("default mode must be standalone")
	}
}

func TestLoadJSON5AndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
	// local overrides
	dialogue: { grace_seconds: 90 },
	channels: { telegram: { allow_from: ["100"] } },
}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WASHDESK_TELEGRAM_TOKEN", "tok-123")
	t.Setenv("WASHDESK_PORT", "19000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dialogue.GraceSeconds != 90 {
		t.Errorf("grace = %d, want file value 90", cfg.Dialogue.GraceSeconds)
	}
	if !cfg.Channels.Telegram.Enabled || cfg.Channels.Telegram.Token != "tok-123" {
		t.Error("telegram should auto-enable from env token")
	}
	if cfg.Gateway.Port != 19000 {
		t.Errorf("port = %d, want env value 19000", cfg.Gateway.Port)
	}
	if cfg.Dialogue.MinProblemText != 8 {
		t.Errorf("untouched default changed: min_problem_text = %d", cfg.Dialogue.MinProblemText)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Dialogue.GraceSeconds != 60 {
		t.Errorf("grace = %d, want default 60", cfg.Dialogue.GraceSeconds)
	}
}

func TestSaveNeverWritesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Channels.Telegram.Token = "secret-token"
	cfg.Providers.OpenAI.APIKey = "sk-secret"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, secret := range []string{"secret-token", "sk-secret"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("secret %q leaked into saved config", secret)
		}
	}
}
