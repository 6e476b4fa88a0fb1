package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dislocations/internal/model"
)

// PostgresRepository implements Repository using PostgreSQL via pgx.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects a pool for the given DSN.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

// Migrate creates the ticks, events and trades tables if they are missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ticks (
		ts TIMESTAMPTZ NOT NULL,
		venue TEXT NOT NULL,
		bid DOUBLE PRECISION NOT NULL,
		ask DOUBLE PRECISION NOT NULL,
		mid DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, venue)
	);
	CREATE TABLE IF NOT EXISTS events (
		seq BIGSERIAL PRIMARY KEY,
		run_started TIMESTAMPTZ NOT NULL,
		event_id INT NOT NULL,
		venue_pair TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		peak_spread_bps DOUBLE PRECISION NOT NULL,
		direction TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS trades (
		seq BIGSERIAL PRIMARY KEY,
		run_started TIMESTAMPTZ NOT NULL,
		trade_id INT NOT NULL,
		event_id INT NOT NULL,
		entry_time TIMESTAMPTZ NOT NULL,
		exit_time TIMESTAMPTZ NOT NULL,
		direction TEXT NOT NULL,
		executable BOOLEAN NOT NULL,
		pnl_bps DOUBLE PRECISION,
		pnl_net_bps DOUBLE PRECISION,
		fee_bps DOUBLE PRECISION NOT NULL,
		half_spread_bps DOUBLE PRECISION NOT NULL,
		slippage_bps DOUBLE PRECISION NOT NULL,
		latency_ms INT NOT NULL
	);`
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// InsertTicks appends quotes to the tick store. Duplicates on (ts, venue)
// are silently skipped, matching the append-only contract.
func (r *PostgresRepository) InsertTicks(ctx context.Context, ticks []model.Quote) error {
	if len(ticks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
		INSERT INTO ticks (ts, venue, bid, ask, mid)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ts, venue) DO NOTHING`
	for _, t := range ticks {
		batch.Queue(query, t.Time, t.Venue, t.Bid, t.Ask, t.Mid)
	}
	br := r.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range ticks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("database: insert tick %d: %w", i, err)
		}
	}
	return nil
}

// TicksBetween returns all quotes in [from, to] ordered by time, then venue.
func (r *PostgresRepository) TicksBetween(ctx context.Context, from, to time.Time) ([]model.Quote, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT ts, venue, bid, ask, mid FROM ticks
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC, venue ASC`, from, to)
	if err != nil {
		return nil, fmt.Errorf("database: query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Quote
	for rows.Next() {
		var q model.Quote
		if err := rows.Scan(&q.Time, &q.Venue, &q.Bid, &q.Ask, &q.Mid); err != nil {
			return nil, fmt.Errorf("database: scan tick: %w", err)
		}
		ticks = append(ticks, q)
	}
	return ticks, rows.Err()
}

// LatestTickTime returns the most recent tick timestamp, or the zero time
// if the store is empty.
func (r *PostgresRepository) LatestTickTime(ctx context.Context) (time.Time, error) {
	var ts *time.Time
	if err := r.Pool.QueryRow(ctx, "SELECT MAX(ts) FROM ticks").Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("database: latest tick time: %w", err)
	}
	if ts == nil {
		return time.Time{}, nil
	}
	return *ts, nil
}

// SaveEvents persists one detection run's events, tagged with the run start.
func (r *PostgresRepository) SaveEvents(ctx context.Context, runStarted time.Time, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
		INSERT INTO events (run_started, event_id, venue_pair, start_time, end_time, peak_spread_bps, direction)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, e := range events {
		batch.Queue(query, runStarted, e.ID, e.VenuePair, e.Start, e.End, e.PeakSpreadBps, string(e.Direction))
	}
	br := r.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("database: insert event %d: %w", i, err)
		}
	}
	return nil
}

// SaveTrades persists one backtest run's trades. Unexecutable trades are
// written with NULL pnl columns, the table-level null marker.
func (r *PostgresRepository) SaveTrades(ctx context.Context, runStarted time.Time, trades []model.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (run_started, trade_id, event_id, entry_time, exit_time, direction,
			executable, pnl_bps, pnl_net_bps, fee_bps, half_spread_bps, slippage_bps, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	for _, t := range trades {
		var pnl, pnlNet *float64
		if t.Executable {
			pnl, pnlNet = &t.PnlBps, &t.PnlNetBps
		}
		batch.Queue(query, runStarted, t.ID, t.EventID, t.EntryTime, t.ExitTime, string(t.Direction),
			t.Executable, pnl, pnlNet, t.FeeBps, t.HalfSpreadBps, t.SlippageBps, t.LatencyMS)
	}
	br := r.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("database: insert trade %d: %w", i, err)
		}
	}
	return nil
}

// EventsSince returns stored events starting at or after the given instant,
// ordered by start time then venue pair.
func (r *PostgresRepository) EventsSince(ctx context.Context, since time.Time) ([]model.Event, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT event_id, venue_pair, start_time, end_time, peak_spread_bps, direction FROM events
		WHERE start_time >= $1
		ORDER BY start_time ASC, venue_pair ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("database: query events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var dir string
		if err := rows.Scan(&e.ID, &e.VenuePair, &e.Start, &e.End, &e.PeakSpreadBps, &dir); err != nil {
			return nil, fmt.Errorf("database: scan event: %w", err)
		}
		e.Direction = model.Direction(dir)
		events = append(events, e)
	}
	return events, rows.Err()
}
