package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *Store {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
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

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := NewPostgres(&repository.Credentials{
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	})
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations("./migrations/postgres"))
	t.Cleanup(func() { _ = store.Close(ctx) })
	return store
}

func TestPostgres_OrderCounterSingleWinner(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	last, err := store.ReadOrderCounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), last)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.SwapOrderCounter(ctx, 1000, 1001)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPostgres_OrdersAndDiscounts(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	code := &domain.DiscountCode{ID: "d1", Code: "SAVE10", Name: "Ten", Type: domain.DiscountPercentage,
		Value: 10, Status: domain.DiscountActive, CreatedAt: time.Now()}
	require.NoError(t, store.CreateDiscount(ctx, code))
	assert.ErrorIs(t, store.CreateDiscount(ctx, code), repository.ErrAlreadyExists)

	got, err := store.FindDiscountByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Value)

	order := &domain.Order{
		OrderNumber: "#UA1001",
		UserID:      "u1",
		Items:       []domain.OrderItem{{ProductID: "p1", Title: "Mug", Price: 100, Quantity: 1}},
		Subtotal:    100,
		Tax:         12,
		Total:       412,
		Shipping:    domain.ShippingCharge{Type: domain.ShippingStandard, Cost: 300},
		Payment:     domain.PaymentInfo{PaymentID: "pay_1", GatewayOrderID: "order_1", Status: domain.PaymentStatusSuccess},
		Status:      domain.OrderStatusProcessing,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, store.CreateSuccessOrder(ctx, order))
	assert.ErrorIs(t, store.CreateSuccessOrder(ctx, order), repository.ErrAlreadyExists)

	stored, err := store.GetOrder(ctx, "u1", "#UA1001")
	require.NoError(t, err)
	assert.Equal(t, order.Items, stored.Items)
}
