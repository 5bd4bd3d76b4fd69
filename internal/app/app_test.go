package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	return &config.Config{
		Env:                "test",
		LogLevel:           "debug",
		HTTPPort:           "0",
		GRPCPort:           "0",
		StoreDriver:        config.DriverSQLite,
		SQLitePath:         filepath.Join(t.TempDir(), "storefront.db"),
		MigrationsPath:     "../repository/sqlstore/migrations/sqlite",
		RedisAddr:          redisAddr,
		FunctionsBaseURL:   "http://localhost:1",
		PaymentKeyID:       "key_test",
		PaymentKeySecret:   "secret",
		InvoiceBucket:      "invoices",
		AWSRegion:          "ap-south-1",
		RateLimitRPS:       10,
		RateLimitBurst:     20,
		CheckoutAttemptTTL: time.Minute,
	}
}

func TestNew_SQLite(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.release(context.Background())

	n, err := a.store.ReadOrderCounter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
	assert.Nil(t, a.publisher)
}

func TestNew_UnknownDriver(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.StoreDriver = "cassandra"

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestNew_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	mr.Close()

	_, err := New(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "redis connection failed")
}

func TestRun_StopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	a, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
