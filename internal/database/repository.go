package database

import (
	"context"
	"time"

	"dislocations/internal/model"
)

// Repository defines the standard interface for tick-store and results
// persistence. The analysis pipeline only ever reads ticks; the collector
// only ever writes them.
type Repository interface {
	Migrate(ctx context.Context) error
	InsertTicks(ctx context.Context, ticks []model.Quote) error
	TicksBetween(ctx context.Context, from, to time.Time) ([]model.Quote, error)
	LatestTickTime(ctx context.Context) (time.Time, error)
	SaveEvents(ctx context.Context, runStarted time.Time, events []model.Event) error
	SaveTrades(ctx context.Context, runStarted time.Time, trades []model.Trade) error
	EventsSince(ctx context.Context, since time.Time) ([]model.Event, error)
}
