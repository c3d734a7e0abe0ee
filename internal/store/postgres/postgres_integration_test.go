//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alanyoungcy/tradecost/internal/domain"
)

func setupPostgres(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("tradecost"),
		pgmodule.WithUsername("tradecost"),
		pgmodule.WithPassword("tradecost"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.NoError(t, c.RunMigrations(ctx))
	require.NoError(t, c.RunMigrations(ctx), "migrations are idempotent")
	return c
}

func TestIntegration_SlippageLogStore(t *testing.T) {
	c := setupPostgres(t)
	ctx := context.Background()
	store := NewSlippageLogStore(c.Pool())

	base := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	var records []domain.LogRecord
	for i := 0; i < 5; i++ {
		records = append(records, domain.LogRecord{
			ID:                         uuid.NewString(),
			LoggedAt:                   base.Add(time.Duration(i) * time.Minute),
			Symbol:                     "BTC-USDT-SWAP",
			ProbeOrderSizeUSD:          domain.Float(float64(100 * (i + 1))),
			MarketSpreadBps:            domain.Float(1.5),
			MarketDepthBestAskUSD:      domain.Float(25000),
			TrueSlippagePctWalkTheBook: domain.Float(0.001 * float64(i)),
		})
	}
	records = append(records, domain.LogRecord{
		ID:                          uuid.NewString(),
		LoggedAt:                    base.Add(10 * time.Minute),
		Symbol:                      "BTC-USDT-SWAP",
		UserOrderSizeUSD:            domain.Float(100),
		PredictedSlippagePctRegress: domain.Float(0.0042),
	})
	require.NoError(t, store.InsertBatch(ctx, records))
	require.NoError(t, store.InsertBatch(ctx, records[:1]), "duplicate ids are skipped")

	recent, err := store.ListRecent(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.False(t, recent[0].IsProbe())
	assert.Nil(t, recent[0].ProbeOrderSizeUSD)
	assert.InDelta(t, 0.0042, *recent[0].PredictedSlippagePctRegress, 1e-12)

	old, err := store.ListBefore(ctx, base.Add(3*time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, records[0].ID, old[0].ID)
	assert.True(t, old[0].LoggedAt.Equal(base))

	n, err := store.DeleteByID(ctx, []string{old[0].ID, old[1].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rest, err := store.ListRecent(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, rest, 4)
}

func TestIntegration_ModelPerformanceStore(t *testing.T) {
	c := setupPostgres(t)
	ctx := context.Background()
	store := NewModelPerformanceStore(c.Pool())

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(ctx, domain.ModelEvaluation{
			ID:                 uuid.NewString(),
			LoggedAt:           time.Date(2025, 5, 4, 10, i, 0, 0, time.UTC),
			NumTrainingSamples: 50 + i,
			TrainMSE:           0.01,
			TrainR2:            0.9,
			Coefficients:       []float64{1e-6, 0.2, -3e-7},
			Intercept:          0.001,
		}))
	}

	got, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 52, got[0].NumTrainingSamples)
	assert.Equal(t, []float64{1e-6, 0.2, -3e-7}, got[0].Coefficients)
}
