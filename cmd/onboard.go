package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/washdeskhq/washdesk/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-time setup",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard()
		},
	}
}

// runOnboard walks through the minimum viable config and writes it out.
// Secrets are never written; the wizard prints the env vars to export.
func runOnboard() error {
	cfgPath := resolveConfigPath()
	cfg := config.Default()
	if _, err := os.Stat(cfgPath); err == nil {
		loaded, loadErr := config.Load(cfgPath)
		if loadErr != nil {
			return fmt.Errorf("existing config is unreadable: %w", loadErr)
		}
		cfg = loaded
		fmt.Printf("Updating existing config at %s\n\n", cfgPath)
	}

	mode := cfg.Database.Mode
	enableTelegram := cfg.Channels.Telegram.Enabled
	enableDiscord := cfg.Channels.Discord.Enabled
	enableSummary := cfg.Cron.SummaryEnabled

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Customer directory file").
				Description("JSON list of customers with sites, phones and aliases").
				Value(&cfg.Identity.DirectoryPath),
			huh.NewInput().
				Title("Remedy catalog file").
				Description("JSON list of known problems with suggested steps").
				Value(&cfg.Resolution.CatalogPath),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable Telegram?").
				Value(&enableTelegram),
			huh.NewConfirm().
				Title("Enable Discord?").
				Value(&enableDiscord),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Operations inbox").
				Description("Receives orders, damage reports and office requests").
				Value(&cfg.Mail.OperationsAddress),
			huh.NewInput().
				Title("Technicians inbox").
				Description("Receives technician dispatch requests").
				Value(&cfg.Mail.TechniciansAddr),
			huh.NewConfirm().
				Title("Send a nightly summary to operations?").
				Value(&enableSummary),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage backend").
				Options(
					huh.NewOption("Standalone (local SQLite file)", "standalone"),
					huh.NewOption("Managed (PostgreSQL)", "managed"),
				).
				Value(&mode),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	cfg.Database.Mode = mode
	cfg.Channels.Telegram.Enabled = enableTelegram
	cfg.Channels.Discord.Enabled = enableDiscord
	cfg.Cron.SummaryEnabled = enableSummary

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("\nConfig written to %s\n\n", cfgPath)

	fmt.Println("Secrets stay in the environment. Export what you enabled:")
	if enableTelegram {
		fmt.Println("  export WASHDESK_TELEGRAM_TOKEN=...")
	}
	if enableDiscord {
		fmt.Println("  export WASHDESK_DISCORD_TOKEN=...")
	}
	fmt.Println("  export WASHDESK_OPENAI_API_KEY=...   # optional, enables AI resolution")
	if mode == "managed" {
		fmt.Println("  export WASHDESK_POSTGRES_DSN=...")
		fmt.Println("\nThen run migrations:  washdesk migrate up")
	}
	fmt.Println("\nStart the gateway:  washdesk")
	return nil
}
