// Package pg backs the washdesk stores with Postgres (managed mode). The
// schema comes from the migrations directory; run `washdesk migrate up`
// before starting the gateway.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/washdeskhq/washdesk/internal/bus"
	"github.com/washdeskhq/washdesk/internal/store"
	"github.com/washdeskhq/washdesk/internal/ticket"
)

// OpenDB opens a Postgres handle via the pgx stdlib driver.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by Postgres.
func NewStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
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

// ticketSequence shares one counter row across gateway instances. The
// UPDATE ... RETURNING form makes concurrent issues serialize in Postgres.
type ticketSequence struct {
	db *sql.DB
}

func newTicketSequence(db *sql.DB, floor int64) (*ticketSequence, error) {
	_, err := db.Exec(
		`INSERT INTO ticket_counter (id, last_number) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET last_number = GREATEST(ticket_counter.last_number, EXCLUDED.last_number)`,
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
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		row.TicketID, at.UTC(), string(row.Kind), row.CustomerName, row.Summary, row.Resolved,
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
		 WHERE recorded_at >= $1 AND recorded_at < $2
		 ORDER BY seq`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []bus.RecordLedgerRow
	for rows.Next() {
		var (
			row  bus.RecordLedgerRow
			kind string
		)
		if err := rows.Scan(&row.TicketID, &row.At, &kind, &row.CustomerName, &row.Summary, &row.Resolved); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		row.At = row.At.In(t.Location())
		row.Kind = bus.RequestKind(kind)
		out = append(out, row)
	}
	return out, rows.Err()
}
