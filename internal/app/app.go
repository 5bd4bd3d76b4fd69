// Package app assembles the storefront from its configuration and runs its
// servers until the context ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/feed"
	"github.com/fjod/storefront/internal/functions"
	api "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/invoice"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/repository/mongostore"
	"github.com/fjod/storefront/internal/repository/sqlstore"
	"github.com/fjod/storefront/internal/sequencer"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	ratesTTL        = time.Minute
	ratesPoll       = 5 * time.Minute
)

// App owns every long-lived resource of a running storefront.
type App struct {
	cfg *config.Config
	log *zap.Logger

	store     repository.Store
	redis     *redis.Client
	carts     *cart.Registry
	rates     *feed.RatesCache
	publisher *events.Publisher
	orch      *checkout.Orchestrator

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
}

// New connects to the store and Redis and builds the servers. Resources
// acquired before a failure are released.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (a *App, err error) {
	a = &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.release(context.Background())
		}
	}()

	if a.store, err = openStore(ctx, cfg, log); err != nil {
		return nil, err
	}
	if err = a.store.EnsureOrderCounter(ctx, sequencer.DefaultBase); err != nil {
		return nil, err
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err = a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	log.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	a.carts = cart.NewRegistry(cache.NewRedisStore(a.redis, "storefront"), log.Named("cart"))
	a.rates = feed.NewRatesCache(a.store, ratesTTL, log.Named("rates"))
	fns := functions.New(cfg.FunctionsBaseURL, functions.WithLogger(log.Named("functions")))

	var publisher checkout.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.publisher = events.NewPublisher(log.Named("events"), cfg.KafkaBrokers...)
		publisher = a.publisher
	} else {
		log.Warn("no kafka brokers configured, order events are disabled")
	}

	var invoiceOpts []invoice.Option
	if cfg.InvoiceEndpoint != "" {
		invoiceOpts = append(invoiceOpts, invoice.WithEndpoint(cfg.InvoiceEndpoint))
	}
	invoices, err := invoice.New(ctx, cfg.AWSRegion, cfg.InvoiceBucket, invoiceOpts...)
	if err != nil {
		return nil, err
	}

	a.orch = checkout.New(a.store, a.carts, sequencer.New(a.store, sequencer.WithLogger(log.Named("sequencer"))),
		a.rates, fns, publisher, checkout.Config{
			KeyID:      cfg.PaymentKeyID,
			KeySecret:  cfg.PaymentKeySecret,
			AttemptTTL: cfg.CheckoutAttemptTTL,
		}, log.Named("checkout"))

	router := api.NewRouter(api.Handlers{
		Cart:     api.NewCartHandler(a.carts, a.store, a.orch, requestTimeout),
		Checkout: api.NewCheckoutHandler(a.orch),
		Orders:   api.NewOrdersHandler(a.store, a.orch, invoices, requestTimeout),
		Address:  api.NewAddressHandler(a.store, requestTimeout),
		Product:  api.NewProductHandler(a.store, requestTimeout),
		Discount: api.NewDiscountHandler(a.store, requestTimeout),
		Contact:  api.NewContactHandler(a.store, fns, requestTimeout),
	}, api.RouterConfig{
		Log:            log.Named("http"),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AdminIDs:       cfg.AdminUserIDs,
	})

	// no WriteTimeout: the cart stream is long-lived
	a.httpServer = &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.health = health.NewServer()
	a.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.health)
	reflection.Register(a.grpcServer)

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		log.Info("connected to mongodb", zap.String("db", cfg.MongoDBName))
		return store, nil

	case config.DriverPostgres, config.DriverSQLite:
		var (
			store *sqlstore.Store
			err   error
		)
		if cfg.StoreDriver == config.DriverPostgres {
			store, err = sqlstore.NewPostgres(&cfg.Postgres)
		} else {
			store, err = sqlstore.NewSQLite(cfg.SQLitePath)
		}
		if err != nil {
			return nil, err
		}
		if err := store.RunMigrations(cfg.MigrationsPath); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		log.Info("connected to sql store", zap.String("driver", cfg.StoreDriver))
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Run serves HTTP and gRPC until ctx is cancelled or a server fails, then
// shuts everything down.
func (a *App) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", ":"+a.cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port: %w", err)
	}

	a.orch.Start()
	a.carts.Start(0, a.cfg.SessionIdleTTL)
	watch := a.rates.Watch(ctx, ratesPoll)
	defer watch.Cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("http server listening", zap.String("port", a.cfg.HTTPPort))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.log.Info("grpc server listening", zap.String("port", a.cfg.GRPCPort))
		a.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case rates, ok := <-watch.Updates():
				if !ok {
					return nil
				}
				a.log.Info("shipping rates", zap.Float64("standard", rates.Standard), zap.Float64("express", rates.Express))
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down")
		a.health.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error("http server forced to shutdown", zap.Error(err))
		}
		a.grpcServer.GracefulStop()
		return nil
	})

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	a.release(shutdownCtx)
	return err
}

// release stops background work and closes connections. Pending cart
// writes are flushed before Redis goes away.
func (a *App) release(ctx context.Context) {
	if a.orch != nil {
		a.orch.Close()
	}
	if a.carts != nil {
		a.carts.Close()
		if err := a.carts.Flush(ctx); err != nil {
			a.log.Error("failed to flush carts", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Error("failed to close publisher", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.log.Error("failed to close store", zap.Error(err))
		}
	}
}
