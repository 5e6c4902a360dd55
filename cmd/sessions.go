package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/washdeskhq/washdesk/internal/config"
	"github.com/washdeskhq/washdesk/internal/session"
)

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List live sessions on a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions()
		},
	}
}

func runSessions() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	url := fmt.Sprintf("http://%s:%d/v1/sessions", host, cfg.Gateway.Port)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if cfg.Gateway.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Gateway.Token)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %s", resp.Status)
	}

	var body struct {
		Count    int            `json:"count"`
		Sessions []session.Info `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if body.Count == 0 {
		fmt.Println("No live sessions.")
		return nil
	}

	printSessionsTable(os.Stdout, body.Sessions)
	fmt.Printf("\n%d session(s)\n", body.Count)
	return nil
}

func printSessionsTable(w *os.File, infos []session.Info) {
	const (
		keyWidth      = 28
		stageWidth    = 24
		customerWidth = 22
	)
	fmt.Fprintf(w, "%s %s %s %5s  %s\n",
		pad("SESSION", keyWidth),
		pad("STAGE", stageWidth),
		pad("CUSTOMER", customerWidth),
		"TURNS",
		"LAST ACTIVITY",
	)
	for _, info := range infos {
		customer := info.CustomerName
		if customer == "" {
			customer = "-"
		}
		fmt.Fprintf(w, "%s %s %s %5d  %s\n",
			pad(info.Key, keyWidth),
			pad(string(info.Stage), stageWidth),
			pad(customer, customerWidth),
			info.Turns,
			info.LastActivity.Format("2006-01-02 15:04:05"),
		)
	}
}

// pad truncates with an ellipsis and fills to width, counting display cells
// so non-Latin customer names keep the columns aligned.
func pad(s string, width int) string {
	return runewidth.FillRight(runewidth.Truncate(s, width, "…"), width)
}
