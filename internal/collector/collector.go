// Package collector samples live venue quotes into the tick store. It is
// the external collaborator of the analysis pipeline: one stream per venue
// feeds the latest quotes, and a paced sampler writes one row per fresh
// venue per interval.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"dislocations/internal/database"
	"dislocations/internal/exchange"
	"dislocations/internal/model"
)

// Collector runs venue streams and the sampling loop.
type Collector struct {
	repo      database.Repository
	clients   []exchange.Client
	interval  time.Duration
	staleness time.Duration
	logger    *slog.Logger
}

// New creates a collector.
func New(repo database.Repository, clients []exchange.Client, interval, staleness time.Duration, logger *slog.Logger) *Collector {
	return &Collector{
		repo:      repo,
		clients:   clients,
		interval:  interval,
		staleness: staleness,
		logger:    logger.With(slog.String("component", "collector")),
	}
}

// Run collects for the given duration (forever when zero) or until ctx is
// cancelled. A clean shutdown returns nil.
func (c *Collector) Run(ctx context.Context, runFor time.Duration) error {
	if runFor > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFor)
		defer cancel()
	}

	quotes := make(chan model.Quote, 1024)
	g, gctx := errgroup.WithContext(ctx)

	for _, client := range c.clients {
		g.Go(func() error {
			return client.Stream(gctx, quotes)
		})
	}
	g.Go(func() error {
		return c.sample(gctx, quotes)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// sample snapshots the freshest quote per venue once per interval and
// batch-inserts them with a shared sampling timestamp, so every venue's
// row for an interval lands on the same point of the time axis.
func (c *Collector) sample(ctx context.Context, quotes <-chan model.Quote) error {
	latest := make(map[string]model.Quote)
	limiter := rate.NewLimiter(rate.Every(c.interval), 1)
	rows := 0
	lastReport := time.Now()

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

	drain:
		for {
			select {
			case q := <-quotes:
				latest[q.Venue] = q
			default:
				break drain
			}
		}

		now := time.Now().UTC().Truncate(time.Millisecond)
		batch := make([]model.Quote, 0, len(latest))
		for _, q := range latest {
			if now.Sub(q.Time) > c.staleness {
				continue
			}
			q.Time = now
			batch = append(batch, q)
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].Venue < batch[j].Venue })

		if len(batch) > 0 {
			if err := c.repo.InsertTicks(ctx, batch); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("failed to insert ticks", "error", err)
				continue
			}
			rows += len(batch)
		}

		if time.Since(lastReport) > 10*time.Second {
			lastReport = time.Now()
			c.logger.Info("collected rows so far", slog.Int("rows", rows))
		}
	}
}
