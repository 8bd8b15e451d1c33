package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bookingsync/libs/auth"
	"github.com/md-rashed-zaman/bookingsync/libs/db"
	"github.com/md-rashed-zaman/bookingsync/libs/grpcx"
	"github.com/md-rashed-zaman/bookingsync/libs/httpx"
	"github.com/md-rashed-zaman/bookingsync/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookingsync/libs/otel"
	"github.com/md-rashed-zaman/bookingsync/libs/runtime"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/botcheck"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/i18n"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/settings"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/bookingsync/services/booking-service/internal/syncsvc"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var checks []runtime.ReadyCheck
	var store storage.Store
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory store")
		mem := storage.NewMemory()
		if cfg.DevSeed {
			seedDemo(mem, logger)
		}
		store = mem
	} else {
		pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: cfg.DBMaxConns})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if err := storage.Migrate(ctx, pool); err != nil {
			logger.Error("db migration failed", "err", err)
			panic(err)
		}
		store = storage.NewPostgres(pool)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
	}

	notifier, closeNotifier := buildNotifier(cfg, logger, &checks)
	defer closeNotifier()

	validate := i18n.NewValidator()
	catalog, err := i18n.New(validate)
	if err != nil {
		panic(err)
	}
	settingsCache := settings.NewCache(settings.StoreLoader(store), 1024, cfg.SettingsCacheTTL)

	var bot botcheck.Verifier = botcheck.Disabled{}
	if cfg.BotSecret != "" {
		bot = botcheck.NewHTTPVerifier(cfg.BotEndpoint, cfg.BotSecret, cfg.BotThreshold, &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		})
	}

	bookingCfg := booking.DefaultConfig()
	bookingCfg.PhoneRegion = cfg.PhoneRegion
	bookingSvc := booking.NewService(store, settingsCache, bot, notifier, validate, logger, bookingCfg)
	syncSvc := syncsvc.NewService(store, settingsCache, notifier, logger, syncsvc.Config{
		RecheckUpdates: cfg.SyncUpdateRecheck,
		SuggestDays:    cfg.SyncSuggestDays,
	})
	h := handlers.New(bookingSvc, syncSvc, catalog, logger)

	var jwks *auth.JWKSClient
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSClient(cfg.JWKSURL, 10*time.Minute, &http.Client{Timeout: 5 * time.Second})
	}
	if cfg.JWTSecret == "" && jwks == nil {
		logger.Warn("no JWT_SECRET or JWKS_URL configured; authenticated routes will reject every request")
	}
	requireAuth := auth.Require(auth.NewVerifier(cfg.JWTSecret, jwks))

	limiter := publicLimiter(cfg, logger, &checks)
	cors := httpx.PublicCORS(cfg.CORSOrigins)
	public := func(hf http.HandlerFunc) http.Handler {
		return httpx.Chain(hf,
			httpx.WithCORS(cors),
			httpx.WithRateLimit(limiter, logger, true),
		)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/v1/public/slots", public(h.Slots))
	mux.Handle("/api/v1/public/book", public(h.Book))
	mux.Handle("/api/v1/appointments/claim", requireAuth(http.HandlerFunc(h.Claim)))
	mux.Handle("/api/v1/sync/push", requireAuth(http.HandlerFunc(h.SyncPush)))
	mux.Handle("/api/v1/sync/pull", requireAuth(http.HandlerFunc(h.SyncPull)))
	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.BodyLimitBytes),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
		} else {
			gs := grpcx.NewServer()
			gs.SetServing("", true)
			go gs.Run(ctx, lis, logger)
		}
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// buildNotifier wires every configured transport behind one async
// dispatcher. With nothing configured events are only logged.
func buildNotifier(cfg Config, logger *slog.Logger, checks *[]runtime.ReadyCheck) (notify.Dispatcher, func()) {
	var (
		targets []notify.Dispatcher
		closers []func()
	)
	if brokers := kafkax.SplitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		w := notify.NewKafkaWriter(brokers)
		targets = append(targets, notify.NewKafkaDispatcher(w))
		closers = append(closers, func() { _ = w.Close() })
		*checks = append(*checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			logger.Error("amqp connection failed; continuing without it", "err", err)
		} else {
			ch, err := conn.Channel()
			if err == nil {
				err = notify.DeclareExchange(ch, cfg.AMQPExchange)
			}
			if err != nil {
				logger.Error("amqp channel setup failed; continuing without it", "err", err)
				_ = conn.Close()
			} else {
				targets = append(targets, notify.NewAMQPDispatcher(ch, cfg.AMQPExchange))
				closers = append(closers, func() {
					_ = ch.Close()
					_ = conn.Close()
				})
			}
		}
	}
	if len(targets) == 0 {
		targets = append(targets, notify.LogDispatcher{Logger: logger})
	}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return notify.NewAsync(notify.Multi(targets), logger, 5*time.Second), closeAll
}

func publicLimiter(cfg Config, logger *slog.Logger, checks *[]runtime.ReadyCheck) httpx.Limiter {
	if cfg.RedisAddr == "" {
		return httpx.NewRateLimiter(cfg.PublicRateLimit, cfg.PublicRateWindow)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	*checks = append(*checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}})
	logger.Info("public rate limit backed by redis", "addr", cfg.RedisAddr)
	return httpx.NewRedisRateLimiter(rdb, cfg.PublicRateLimit, cfg.PublicRateWindow, "ratelimit:public:")
}
