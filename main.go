package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/bookstore-orders/internal/application"
	appCart "github.com/Zhima-Mochi/bookstore-orders/internal/application/cart"
	appInventory "github.com/Zhima-Mochi/bookstore-orders/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/bookstore-orders/internal/application/order"
	"github.com/Zhima-Mochi/bookstore-orders/internal/config"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/cart"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/bookstore-orders/internal/domain/order"
	"github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/id"
	"github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/memory"
	mongorepo "github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/mongo"
	obsprovider "github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/payment"
	rediscache "github.com/Zhima-Mochi/bookstore-orders/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/bookstore-orders/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/bookstore-orders/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/bookstore-orders/internal/presentation/worker"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const metricsNamespace = "bookstore"

type storage struct {
	books  inventory.Repository
	carts  cart.Repository
	orders order.Repository
	close  func(context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.WithTrace(baseLogger, logging.SystemTraceID, logging.SystemSpanID)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.Instruments(prometrics.New(registry, metricsNamespace, ""))

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	tel := obsprovider.New(
		oteltrace.New(cfg.ServiceName),
		zaplogger.New(baseLogger),
		obsprovider.Instruments{Counters: counters, Histograms: histograms},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg)
	if err != nil {
		systemLogger.Fatal("storage_open_failed", zap.String("driver", cfg.StorageDriver), zap.Error(err))
	}
	systemLogger.Info("storage_ready", zap.String("driver", cfg.StorageDriver))

	if cfg.SeedBooks && cfg.StorageDriver == config.DriverMemory {
		if err := seedCatalog(ctx, store.books); err != nil {
			systemLogger.Fatal("catalog_seed_failed", zap.Error(err))
		}
	}

	cache, closeCache, err := openCartCache(ctx, cfg)
	if err != nil {
		systemLogger.Fatal("cart_cache_unavailable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	retry := application.RetryPolicy{
		MaxAttempts:    cfg.ReserveMaxAttempts,
		InitialBackoff: cfg.ReserveInitialBackoff,
		MaxBackoff:     application.DefaultRetryPolicy().MaxBackoff,
	}

	// In-process event bus carrying deferred compensations to the workers
	bus := outbox.NewBus(tel.Logger(), outbox.WithMiddleware(workerpresentation.EventMiddleware(tel)))

	ledger := appInventory.NewLedger(store.books, retry, tel)
	cartService := appCart.NewService(store.carts, cache, ledger, retry, tel)

	bridge := payment.NewBreakerBridge(payment.NewMockGateway(cfg.PaymentSuccessRate), payment.BreakerSettings{
		ConsecutiveFailures: cfg.PaymentBreakerFailures,
		OpenTimeout:         cfg.PaymentBreakerTimeout,
	}, tel)

	orderService := appOrder.NewService(appOrder.Deps{
		Orders:    store.orders,
		Carts:     store.carts,
		CartStore: cartService,
		Ledger:    ledger,
		Bridge:    bridge,
		IDs:       id.NewUUIDGenerator(),
		Publisher: bus,
	}, appOrder.Config{
		Retry:             retry,
		CartClearAttempts: cfg.CartClearMaxAttempts,
		Currency:          cfg.PaymentCurrency,
	}, tel)

	appInventory.NewWorker(bus, ledger, tel.Logger()).Start()
	appCart.NewWorker(bus, cartService, tel.Logger()).Start()
	bus.Start(ctx)

	handler := httppresentation.NewHandler(orderService, cartService, tel, cfg.HTTPRequestTimeout)
	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.Mount("/", handler.Router())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		systemLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			systemLogger.Error("http_server_error",
				zap.Error(err),
			)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		systemLogger.Info("http_server_stopped")
	}

	// owed releases and cart clears still queued are drained before storage goes away
	bus.Stop(shutdownCtx)
	if err := closeCache(); err != nil {
		systemLogger.Warn("cart_cache_close_error", zap.Error(err))
	}
	if err := store.close(shutdownCtx); err != nil {
		systemLogger.Warn("storage_close_error", zap.Error(err))
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.StorageDriver == config.DriverMemory {
		return &storage{
			books:  memory.NewBookRepository(),
			carts:  memory.NewCartRepository(),
			orders: memory.NewOrderRepository(),
			close:  func(context.Context) error { return nil },
		}, nil
	}

	db, err := mongorepo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTimeout)
	if err != nil {
		return nil, err
	}
	if err := mongorepo.EnsureIndexes(ctx, db); err != nil {
		_ = db.Client().Disconnect(context.Background())
		return nil, err
	}
	return &storage{
		books:  mongorepo.NewBookRepository(db),
		carts:  mongorepo.NewCartRepository(db),
		orders: mongorepo.NewOrderRepository(db),
		close:  db.Client().Disconnect,
	}, nil
}

// openCartCache returns a nil cache when REDIS_ADDR is unset.
func openCartCache(ctx context.Context, cfg *config.Config) (cart.Cache, func() error, error) {
	if cfg.RedisAddr == "" {
		return nil, func() error { return nil }, nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return rediscache.NewCartCache(client, cfg.CartCacheTTL), client.Close, nil
}

var demoCatalog = []struct {
	id    string
	price string
	stock int
}{
	{"978-0134190440", "34.99", 25},
	{"978-1491941195", "42.50", 12},
	{"978-0262033848", "89.00", 5},
	{"978-1617294136", "19.99", 1},
}

// seedCatalog upserts the demo books, overwriting their stock.
func seedCatalog(ctx context.Context, books inventory.Repository) error {
	for _, d := range demoCatalog {
		price, err := decimal.NewFromString(d.price)
		if err != nil {
			return err
		}
		book, err := inventory.NewBook(d.id, price, d.stock)
		if err != nil {
			return err
		}
		if err := books.Save(ctx, book); err != nil {
			return fmt.Errorf("seed %s: %w", d.id, err)
		}
	}
	return nil
}
