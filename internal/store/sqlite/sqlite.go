// Package sqlite backs the washdesk stores with a local SQLite file
// (standalone mode). The schema is created on open, so a fresh install
// needs no migration step.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/store"
	"github.com/washdeskhq/washdesk/internal/ticket"
)

// NewStores opens (or creates) the SQLite database and returns the bundle.
func NewStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := openDB(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	floor := cfg.TicketFloor
	if floor < ticket.DefaultFloor {
		floor = ticket.DefaultFloor
	}
	seq, err := newTicketSequence(db, floor)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store.NewStores(seq, &ledgerStore{db: db}, db.Close), nil
}

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL keeps the gateway's consumer and cron goroutines from tripping
	// over each other on a single file.
	dsn := path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func initSchema(db *sql.DB) error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS ticket_counter (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_number INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS service_ledger (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		kind TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		summary TEXT NOT NULL,
		resolved INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_recorded ON service_ledger(recorded_at);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// ticketSequence persists the counter so restarts never reissue a number.
type ticketSequence struct {
	db *sql.DB
}

func newTicketSequence(db *sql.DB, floor int64) (*ticketSequence, error) {
	_, err := db.Exec(
		`INSERT INTO ticket_counter (id, last_number) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET last_number = MAX(last_number, excluded.last_number)`,
		floor,
	)
	if err != nil {
		return nil, fmt.Errorf("seed ticket counter: %w", err)
	}
	return &ticketSequence{db: db}, nil
}

func (s *ticketSequence) Next(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE ticket_counter SET last_number = last_number + 1 WHERE id = 1
		 RETURNING last_number`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("advance ticket counter: %w", err)
	}
	return n, nil
}

type ledgerStore struct {
	db *sql.DB
}

func (l *ledgerStore) Append(ctx context.Context, row bus.RecordLedgerRow) error {
	at := row.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO service_ledger (ticket_id, recorded_at, kind, customer_name, summary, resolved)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.TicketID, at.Unix(), string(row.Kind), row.CustomerName, row.Summary, boolInt(row.Resolved),
	)
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	return nil
}

func (l *ledgerStore) DayRows(ctx context.Context, t time.Time) ([]bus.RecordLedgerRow, error) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end := start.Add(24 * time.Hour)

	rows, err := l.db.QueryContext(ctx,
		`SELECT ticket_id, recorded_at, kind, customer_name, summary, resolved
		 FROM service_ledger
		 WHERE recorded_at >= ? AND recorded_at < ?
		 ORDER BY seq`,
		start.Unix(), end.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []bus.RecordLedgerRow
	for rows.Next() {
		var (
			row      bus.RecordLedgerRow
			at       int64
			kind     string
			resolved int
		)
		if err := rows.Scan(&row.TicketID, &at, &kind, &row.CustomerName, &row.Summary, &resolved); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		row.At = time.Unix(at, 0).In(t.Location())
		row.Kind = bus.RequestKind(kind)
		row.Resolved = resolved != 0
		out = append(out, row)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
