package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/washdeskhq/washdesk/internal/config"
	"github.com/washdeskhq/washdesk/internal/identity"
	"github.com/washdeskhq/washdesk/internal/resolution"
	"github.com/washdeskhq/washdesk/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("washdesk doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Data files:")
	checkFile("Directory", cfg.Identity.DirectoryPath, func(path string) (int, error) {
		dir, err := identity.LoadDirectory(path)
		if err != nil {
			return 0, err
		}
		return dir.Len(), nil
	})
	checkFile("Catalog", cfg.Resolution.CatalogPath, func(path string) (int, error) {
		cat, err := resolution.LoadCatalog(path)
		if err != nil {
			return 0, err
		}
		return cat.Len(), nil
	})

	fmt.Println()
	fmt.Println("  Channels:")
	checkSecret("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token, "WASHDESK_TELEGRAM_TOKEN")
	checkSecret("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token, "WASHDESK_DISCORD_TOKEN")

	fmt.Println()
	fmt.Println("  Providers:")
	if cfg.Providers.OpenAI.APIKey == "" {
		fmt.Println("    OpenAI:     no API key (keyword matching only)")
	} else {
		fmt.Printf("    OpenAI:     key set, model %s", cfg.Providers.OpenAI.Model)
		if cfg.Providers.OpenAI.AssistantID != "" {
			fmt.Printf(", assistant %s", cfg.Providers.OpenAI.AssistantID)
		}
		fmt.Println()
	}

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-12s%s\n", "Mode:", cfg.Database.Mode)
	if cfg.Managed() {
		if cfg.Database.PostgresDSN == "" {
			fmt.Println("    Postgres:   WASHDESK_POSTGRES_DSN not set")
		} else if db, dbErr := sql.Open("pgx", cfg.Database.PostgresDSN); dbErr != nil {
			fmt.Printf("    Postgres:   open failed: %s\n", dbErr)
		} else {
			defer db.Close()
			if pingErr := db.Ping(); pingErr != nil {
				fmt.Printf("    Postgres:   unreachable: %s\n", pingErr)
			} else {
				fmt.Println("    Postgres:   OK")
			}
		}
	} else {
		fmt.Printf("    SQLite:     %s\n", cfg.Database.SQLitePath)
	}
}

func checkFile(label, path string, load func(string) (int, error)) {
	n, err := load(path)
	if err != nil {
		fmt.Printf("    %-12s%s (ERROR: %s)\n", label+":", path, err)
		return
	}
	fmt.Printf("    %-12s%s (%d entries)\n", label+":", path, n)
}

func checkSecret(label string, enabled bool, token, envVar string) {
	switch {
	case !enabled:
		fmt.Printf("    %-12sdisabled\n", label+":")
	case token == "":
		fmt.Printf("    %-12senabled but %s not set\n", label+":", envVar)
	default:
		fmt.Printf("    %-12sOK\n", label+":")
	}
}
