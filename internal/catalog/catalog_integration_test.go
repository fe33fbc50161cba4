//go:build integration

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ariefcatur/go-saree-storefront/internal/postgres"
)

func setupTestDB(t *testing.T) *Repo {
	ctx := context.Background()
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, postgres.Migrate(dsn))
	pool, err := postgres.Connect(ctx, dsn, postgres.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return &Repo{DB: pool}
}

const banarasi = "b6f1c2d0-1a11-4c1e-9a01-000000000001"

func TestList_SeededCatalog(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	silk, err := repo.List(ctx, Filter{Category: "silk"})
	require.NoError(t, err)
	assert.Len(t, silk, 2)

	cats, err := repo.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cotton", "silk"}, cats)
}

func TestPrices_SkipsUnknownAndReportsStock(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	_, err := repo.DB.Exec(ctx, `UPDATE products SET in_stock=false WHERE id=$1`, banarasi)
	require.NoError(t, err)

	got, err := repo.Prices(ctx, []string{banarasi, "missing"})
	require.NoError(t, err)

	require.Contains(t, got, banarasi)
	assert.NotContains(t, got, "missing")
	assert.False(t, got[banarasi].InStock)
	assert.Equal(t, "15000", got[banarasi].Price.String())
}
