// Package pipeline composes the analysis stages: tick store read, spread
// series build, dislocation detection, frictional backtest. Each stage
// fully consumes its input before the next starts; a run is deterministic
// given the same stored ticks and configuration.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dislocations/internal/backtest"
	"dislocations/internal/config"
	"dislocations/internal/database"
	"dislocations/internal/detector"
	"dislocations/internal/model"
	"dislocations/internal/spread"
)

// ErrNoTicks reports an empty lookback window. The caller decides whether
// that is a quiet store or a collector that never ran.
var ErrNoTicks = errors.New("no ticks in lookback window")

// Counts summarizes a run so an operator can tell a quiet market from a
// misconfiguration.
type Counts struct {
	Ticks          int
	TicksPerVenue  map[string]int
	Samples        int
	SamplesSkipped int
	SamplesDropped int
	Events         int
	Executable     int
	Unexecutable   int
}

// Result is the complete output of one analysis run.
type Result struct {
	WindowStart time.Time
	WindowEnd   time.Time
	Samples     []model.SpreadSample
	Events      []model.Event
	Trades      []model.Trade
	Counts      Counts
	EmptyVenues []string
}

// Runner wires the stages to a repository and configuration.
type Runner struct {
	repo   database.Repository
	cfg    config.Config
	logger *slog.Logger
}

// NewRunner creates a pipeline runner.
func NewRunner(repo database.Repository, cfg config.Config, logger *slog.Logger) *Runner {
	return &Runner{repo: repo, cfg: cfg, logger: logger.With(slog.String("component", "pipeline"))}
}

// Detect reads the lookback window ending at the newest stored tick, builds
// the spread series and detects events. Detected events are persisted.
func (r *Runner) Detect(ctx context.Context) (*Result, error) {
	res, err := r.analyze(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.repo.SaveEvents(ctx, res.WindowEnd, res.Events); err != nil {
		return nil, fmt.Errorf("pipeline: save events: %w", err)
	}
	return res, nil
}

// analyze runs the read + build + detect stages without persisting anything.
func (r *Runner) analyze(ctx context.Context) (*Result, error) {
	runID := uuid.NewString()
	latest, err := r.repo.LatestTickTime(ctx)
	if err != nil {
		return nil, err
	}
	if latest.IsZero() {
		return nil, ErrNoTicks
	}

	res := &Result{
		WindowEnd:   latest,
		WindowStart: latest.Add(-r.cfg.Lookback()),
	}
	ticks, err := r.repo.TicksBetween(ctx, res.WindowStart, res.WindowEnd)
	if err != nil {
		return nil, err
	}
	if len(ticks) == 0 {
		return nil, ErrNoTicks
	}

	res.Counts.Ticks = len(ticks)
	res.Counts.TicksPerVenue = make(map[string]int)
	for _, t := range ticks {
		res.Counts.TicksPerVenue[t.Venue]++
	}
	for _, v := range r.cfg.Venues {
		if res.Counts.TicksPerVenue[v] == 0 {
			res.EmptyVenues = append(res.EmptyVenues, v)
		}
	}
	if len(res.EmptyVenues) > 0 {
		r.logger.Warn("venues with no ticks in window",
			slog.Any("venues", res.EmptyVenues), slog.String("run_id", runID))
	}

	builder := spread.NewBuilder(r.cfg.Staleness())
	samples, stats := builder.Build(ticks)
	res.Samples = samples
	res.Counts.Samples = stats.Samples
	res.Counts.SamplesSkipped = stats.SkippedStale
	res.Counts.SamplesDropped = stats.DroppedBadRef

	det := detector.New(r.cfg.ThresholdBps, r.cfg.Persistence())
	res.Events = det.Detect(samples)
	res.Counts.Events = len(res.Events)

	r.logger.Info("detection finished",
		slog.String("run_id", runID),
		slog.Int("ticks", res.Counts.Ticks),
		slog.Int("samples", res.Counts.Samples),
		slog.Int("events", res.Counts.Events),
	)
	return res, nil
}

// Backtest maps the given events to trades against the result's spread
// series and persists them.
func (r *Runner) Backtest(ctx context.Context, res *Result) error {
	engine := backtest.NewEngine(r.cfg.Latency(), r.cfg.Staleness(), backtest.Costs{
		FeeBps:        r.cfg.Costs.FeeBps,
		HalfSpreadBps: r.cfg.Costs.HalfSpreadBps,
		SlippageBps:   r.cfg.Costs.SlippageBps,
	})
	res.Trades = engine.Run(res.Events, res.Samples)
	for _, t := range res.Trades {
		if t.Executable {
			res.Counts.Executable++
		} else {
			res.Counts.Unexecutable++
		}
	}
	if err := r.repo.SaveTrades(ctx, res.WindowEnd, res.Trades); err != nil {
		return fmt.Errorf("pipeline: save trades: %w", err)
	}
	r.logger.Info("backtest finished",
		slog.Int("trades", len(res.Trades)),
		slog.Int("executable", res.Counts.Executable),
		slog.Int("unexecutable", res.Counts.Unexecutable),
	)
	return nil
}

// Run executes the full detect + backtest sequence.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res, err := r.Detect(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.Backtest(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ReplayEvents rebuilds the spread series for the lookback window and
// backtests previously stored events against it. Used by the standalone
// backtest command.
func (r *Runner) ReplayEvents(ctx context.Context) (*Result, error) {
	res, err := r.analyze(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := r.repo.EventsSince(ctx, res.WindowStart)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load events: %w", err)
	}
	res.Events = stored
	res.Counts.Events = len(stored)
	if err := r.Backtest(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}
