package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/domain/checkout"
	"github.com/xenking/storefront-checkout/internal/handler"
	"github.com/xenking/storefront-checkout/internal/notify"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	storeredis "github.com/xenking/storefront-checkout/internal/storage/redis"
	"github.com/xenking/storefront-checkout/pkg/health"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server and the notification
// dispatcher, and handles graceful shutdown. It is the single wiring point of
// the API server.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	if err := cfg.validateServer(); err != nil {
		return err
	}
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	var idempotency handler.IdempotencyStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		healthSvc.AddReadinessCheck("redis", 2*time.Second, health.RedisCheck(rdb))
		idempotency = storeredis.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL, cfg.Redis.PendingTTL)
	} else {
		lg.Info("Redis not configured, Idempotency-Key support disabled")
	}

	sender, closeSender := newSender(lg, cfg)
	defer closeSender()

	var (
		dispatcher *notify.Dispatcher
		notifier   checkout.Notifier
	)
	if sender != nil {
		dispatcher = notify.NewDispatcher(sender,
			notify.WithQueueSize(cfg.Notify.QueueSize),
			notify.WithMaxRetries(cfg.Notify.MaxRetries),
			notify.WithDrainTimeout(cfg.Notify.DrainTimeout),
			notify.WithLogger(lg.Named("notify")),
			notify.WithMeterProvider(m.MeterProvider()),
		)
		notifier = dispatcher
	}

	store := postgres.NewCheckoutStore(pool, postgres.WithMaxAttempts(cfg.Checkout.MaxAttempts))
	checkoutSvc, err := checkout.NewService(store, notifier,
		checkout.WithAdminEmail(cfg.AdminEmail),
		checkout.WithTimeout(cfg.Checkout.Timeout),
		checkout.WithTracerProvider(m.TracerProvider()),
		checkout.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create checkout service")
	}

	h := handler.NewHandler(handler.Config{
		ImageBaseURL:      cfg.ImageBaseURL,
		APIKeyPepper:      []byte(cfg.APIKeyPepper),
		RetryAfterSeconds: cfg.Checkout.RetryAfter,
	}, handler.Deps{
		Products:    postgres.NewProductRepository(pool),
		Carts:       postgres.NewCartRepository(pool),
		Accounts:    postgres.NewAccountRepository(pool),
		Orders:      postgres.NewOrderRepository(pool),
		APIKeys:     postgres.NewAPIKeyRepository(pool),
		Service:     checkoutSvc,
		Idempotency: idempotency,
	})

	router := chi.NewRouter()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	h.Routes(router)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Checkout.Timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.HeaderAPIKey, handler.HeaderIdempotencyKey},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID, handler.HeaderReplayed, "Retry-After"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// The dispatcher outlives the server so that orders placed by in-flight
	// requests are still announced.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	if dispatcher != nil {
		g.Go(func() error {
			return dispatcher.Run(dispatchCtx)
		})
	}
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		stopDispatch()
		return nil
	})
	return g.Wait()
}

// newSender builds the notification fan-out from what is configured. It
// returns nil when notifications are disabled.
func newSender(lg *zap.Logger, cfg *Config) (notify.Sender, func()) {
	var (
		senders notify.Multi
		closers []func()
	)
	if len(cfg.Kafka.Brokers) > 0 {
		w := notify.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		closers = append(closers, func() {
			if err := w.Close(); err != nil {
				lg.Warn("Close kafka writer", zap.Error(err))
			}
		})
		senders = append(senders, notify.NewKafkaPublisher(w))
		lg.Info("Publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	if cfg.Mail.Enabled() && !(cfg.Notify.EmailViaRelay && len(cfg.Kafka.Brokers) > 0) {
		senders = append(senders, notify.NewMailer(cfg.Mail.MailerConfig(), nil, lg.Named("mailer")))
		lg.Info("Sending order emails", zap.String("from", cfg.Mail.FromEmail))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	switch len(senders) {
	case 0:
		lg.Info("Order notifications disabled")
		return nil, closeAll
	case 1:
		return senders[0], closeAll
	default:
		return senders, closeAll
	}
}
