package orders

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-checkout-orders/internal/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func setupPostgresRepo(t *testing.T) *Repository {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
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
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := postgres.Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewRepository(&PostgresStore{DB: db}, testCalc,
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(zaptest.NewLogger(t)),
	)
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	repo := setupPostgresRepo(t)
	ctx := context.Background()

	first := placeOrder(t, repo, "u1")
	second := placeOrder(t, repo, "u1")

	got, err := repo.GetOrderByID(ctx, "u1", first.OrderID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	list, err := repo.GetOrderHistory(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.OrderID, list[0].OrderID)

	_, err = repo.UpdateOrderStatus(ctx, "u1", first.OrderID, StatusDelivered)
	require.NoError(t, err)
	delivered, err := repo.GetOrdersByStatus(ctx, "u1", StatusDelivered)
	require.NoError(t, err)
	assert.Len(t, delivered, 1)

	require.NoError(t, repo.DeleteOrder(ctx, "u1", second.OrderID))
	require.NoError(t, repo.ClearOrderHistory(ctx, "u1"))
	list, err = repo.GetOrderHistory(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPostgresStore_RollbackOnError(t *testing.T) {
	repo := setupPostgresRepo(t)
	ctx := context.Background()
	o := placeOrder(t, repo, "u1")

	_, err := repo.UpdateOrderStatus(ctx, "u1", o.OrderID, StatusShipped)
	require.NoError(t, err)
	_, err = repo.UpdateOrderStatus(ctx, "u1", o.OrderID, StatusCompleted)
	require.ErrorIs(t, err, ErrIllegalTransition)

	got, err := repo.GetOrderByID(ctx, "u1", o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, got.Status)
}
