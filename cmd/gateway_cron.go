package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/config"
	"github.com/washdeskhq/washdesk/internal/dispatch"
	"github.com/washdeskhq/washdesk/internal/store"
	"github.com/washdeskhq/washdesk/pkg/protocol"
)

// runSummaryCron mails the operations inbox a digest of the previous day's
// ledger on the configured schedule. Blocks until ctx ends.
func runSummaryCron(ctx context.Context, cfg *config.Config, ledger store.LedgerStore, dispatcher *dispatch.Dispatcher, msgBus *bus.MessageBus) {
	expr := cfg.Cron.SummarySchedule
	if !gronx.New().IsValid(expr) {
		slog.Error("invalid summary schedule, cron disabled", "schedule", expr)
		return
	}
	slog.Info("summary cron started", "schedule", expr)

	for {
		next, err := gronx.NextTick(expr, false)
		if err != nil {
			slog.Error("summary schedule evaluation failed", "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			sendDailySummary(ctx, ledger, dispatcher, msgBus)
		}
	}
}

func sendDailySummary(ctx context.Context, ledger store.LedgerStore, dispatcher *dispatch.Dispatcher, msgBus *bus.MessageBus) {
	day := time.Now().AddDate(0, 0, -1)
	rows, err := ledger.DayRows(ctx, day)
	if err != nil {
		slog.Error("daily summary query failed", "error", err)
		return
	}

	date := day.Format("2006-01-02")
	if len(rows) == 0 {
		slog.Info("daily summary skipped, no activity", "date", date)
		return
	}

	dispatcher.Execute(ctx, []bus.Intent{bus.SendOperationalEmail{
		Kind:    bus.KindSummary,
		Subject: fmt.Sprintf("Daily service summary %s", date),
		Payload: formatSummary(date, rows),
	}})

	msgBus.Broadcast(bus.Event{
		Name: protocol.EventSummarySent,
		Payload: map[string]interface{}{
			"date": date,
			"rows": len(rows),
		},
	})
	slog.Info("daily summary sent", "date", date, "rows", len(rows))
}

func formatSummary(date string, rows []bus.RecordLedgerRow) string {
	var b strings.Builder
	resolved := 0
	fmt.Fprintf(&b, "Service summary for %s\n\n", date)
	for _, row := range rows {
		mark := "open"
		if row.Resolved {
			mark = "resolved"
			resolved++
		}
		name := row.CustomerName
		if name == "" {
			name = "guest"
		}
		fmt.Fprintf(&b, "%s  %-14s %-10s %s\n", row.TicketID, row.Kind, mark, name)
		if row.Summary != "" {
			fmt.Fprintf(&b, "      %s\n", row.Summary)
		}
	}
	fmt.Fprintf(&b, "\nTotal: %d requests, %d resolved\n", len(rows), resolved)
	return b.String()
}
