package database

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"dislocations/internal/model"
)

var (
	pool *pgxpool.Pool
	repo *PostgresRepository
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Define the PostgreSQL container request
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("could not start postgres container: %s", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			log.Fatalf("could not stop postgres container: %s", err)
		}
	}()

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	connStr := "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb"

	pool, err = pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}
	defer pool.Close()

	repo = &PostgresRepository{Pool: pool}
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("could not migrate: %s", err)
	}

	os.Exit(m.Run())
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestPostgresRepository_Ticks(t *testing.T) {
	ctx := context.Background()

	ticks := []model.Quote{
		{Venue: "kraken", Time: t0, Bid: 59999, Ask: 60001, Mid: 60000},
		{Venue: "coinbase", Time: t0, Bid: 60004, Ask: 60006, Mid: 60005},
		{Venue: "kraken", Time: t0.Add(time.Second), Bid: 60000, Ask: 60002, Mid: 60001},
	}
	require.NoError(t, repo.InsertTicks(ctx, ticks))

	// Re-inserting the same rows is a no-op (append-only store).
	require.NoError(t, repo.InsertTicks(ctx, ticks))

	got, err := repo.TicksBetween(ctx, t0, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Ordered by time then venue.
	assert.Equal(t, "coinbase", got[0].Venue)
	assert.Equal(t, "kraken", got[1].Venue)
	assert.Equal(t, 60001.0, got[2].Mid)

	latest, err := repo.LatestTickTime(ctx)
	require.NoError(t, err)
	assert.True(t, latest.Equal(t0.Add(time.Second)), "latest = %s", latest)

	// Window bounds are inclusive.
	got, err = repo.TicksBetween(ctx, t0.Add(time.Second), t0.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPostgresRepository_Events(t *testing.T) {
	ctx := context.Background()

	events := []model.Event{
		{ID: 1, VenuePair: "coinbase/kraken", Start: t0, End: t0.Add(700 * time.Millisecond),
			PeakSpreadBps: 7.9968, Direction: model.BOverA},
		{ID: 2, VenuePair: "coinbase/kraken", Start: t0.Add(5 * time.Second), End: t0.Add(6 * time.Second),
			PeakSpreadBps: 9.5, Direction: model.AOverB},
	}
	require.NoError(t, repo.SaveEvents(ctx, t0.Add(time.Hour), events))

	got, err := repo.EventsSince(ctx, t0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.BOverA, got[0].Direction)
	assert.InDelta(t, 7.9968, got[0].PeakSpreadBps, 1e-9)
	assert.True(t, got[0].Start.Before(got[1].Start))

	got, err = repo.EventsSince(ctx, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPostgresRepository_Trades(t *testing.T) {
	ctx := context.Background()

	trades := []model.Trade{
		{ID: 1, EventID: 1, EntryTime: t0.Add(200 * time.Millisecond), ExitTime: t0.Add(900 * time.Millisecond),
			Direction: model.BOverA, Executable: true, PnlBps: 7.99, PnlNetBps: -1.01,
			FeeBps: 2, HalfSpreadBps: 1, SlippageBps: 3, LatencyMS: 200},
		{ID: 2, EventID: 2, EntryTime: t0.Add(5200 * time.Millisecond), ExitTime: t0.Add(6200 * time.Millisecond),
			Direction: model.AOverB, Executable: false,
			FeeBps: 2, HalfSpreadBps: 1, SlippageBps: 3, LatencyMS: 200},
	}
	require.NoError(t, repo.SaveTrades(ctx, t0.Add(time.Hour), trades))

	// Unexecutable trades are stored with NULL pnl columns.
	var pnl, pnlNet *float64
	err := pool.QueryRow(ctx,
		"SELECT pnl_bps, pnl_net_bps FROM trades WHERE trade_id = 2").Scan(&pnl, &pnlNet)
	require.NoError(t, err)
	assert.Nil(t, pnl)
	assert.Nil(t, pnlNet)

	err = pool.QueryRow(ctx,
		"SELECT pnl_bps, pnl_net_bps FROM trades WHERE trade_id = 1").Scan(&pnl, &pnlNet)
	require.NoError(t, err)
	require.NotNil(t, pnl)
	assert.InDelta(t, 7.99, *pnl, 1e-9)
}
