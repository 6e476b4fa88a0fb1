package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dislocations/internal/collector"
	"dislocations/internal/config"
	"dislocations/internal/database"
	"dislocations/internal/exchange"
	"dislocations/internal/pipeline"
	"dislocations/internal/report"
)

var (
	cfgDir string
	logger *slog.Logger
)

func main() {
	logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))

	rootCmd := &cobra.Command{
		Use:   "dislocations",
		Short: "Cross-venue price dislocation detector and frictional backtester",
		Long: `Collects synchronized mid-price quotes from multiple venues, detects
sustained cross-venue price dislocations and evaluates whether they were
exploitable after trading frictions and execution latency.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config", ".", "directory containing config.yaml")

	var minutes float64
	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Stream venue quotes into the tick store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), minutes)
		},
	}
	collectCmd.Flags().Float64Var(&minutes, "minutes", 15, "how long to collect (0 = until interrupted)")

	detectCmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect dislocation events over the lookback window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd.Context(), modeDetect)
		},
	}
	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest previously detected events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd.Context(), modeBacktest)
		},
	}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Detect events and backtest them in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalysis(cmd.Context(), modeRun)
		},
	}

	rootCmd.AddCommand(collectCmd, detectCmd, backtestCmd, runCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context) (config.Config, *database.PostgresRepository, error) {
	cfg, err := config.LoadConfig(cfgDir)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("cannot load config: %w", err)
	}
	repo, err := database.NewPostgresRepository(ctx, cfg.Database.DSN())
	if err != nil {
		return config.Config{}, nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return config.Config{}, nil, err
	}
	return cfg, repo, nil
}

func runCollect(ctx context.Context, minutes float64) error {
	cfg, repo, err := setup(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	clients := make([]exchange.Client, 0, len(cfg.Venues))
	for _, venue := range cfg.Venues {
		client, err := exchange.NewClient(venue, logger, cfg.Pair)
		if err != nil {
			return err
		}
		clients = append(clients, client)
	}

	col := collector.New(repo, clients, cfg.SampleInterval(), cfg.Staleness(), logger)
	logger.Info("collector starting",
		slog.Any("venues", cfg.Venues),
		slog.String("pair", cfg.Pair),
		slog.Float64("minutes", minutes),
	)
	return col.Run(ctx, time.Duration(minutes*float64(time.Minute)))
}

type mode int

const (
	modeDetect mode = iota
	modeBacktest
	modeRun
)

func runAnalysis(ctx context.Context, m mode) error {
	cfg, repo, err := setup(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	runner := pipeline.NewRunner(repo, cfg, logger)
	var res *pipeline.Result
	switch m {
	case modeDetect:
		res, err = runner.Detect(ctx)
	case modeBacktest:
		res, err = runner.ReplayEvents(ctx)
	default:
		res, err = runner.Run(ctx)
	}
	if err != nil {
		if errors.Is(err, pipeline.ErrNoTicks) {
			fmt.Println("no ticks in lookback window; run collect first")
			return nil
		}
		return err
	}

	w := report.NewWriter(cfg.OutDir, cfg.LookbackMin)
	metricsPath, err := w.WriteMetrics(res.Samples)
	if err != nil {
		return err
	}
	fmt.Printf("saved metrics: %s\n", metricsPath)

	eventsPath, err := w.WriteEvents(res.Events)
	if err != nil {
		return err
	}
	fmt.Printf("saved events:  %s\n", eventsPath)

	if m != modeDetect {
		tradesPath, err := w.WriteTrades(res.Trades)
		if err != nil {
			return err
		}
		fmt.Printf("saved trades:  %s\n", tradesPath)
	}
	report.Summary(os.Stdout, res)
	return nil
}
