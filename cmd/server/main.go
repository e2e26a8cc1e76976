package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/example/ride-hailing/internal/auth"
	"github.com/example/ride-hailing/internal/config"
	"github.com/example/ride-hailing/internal/dispatch"
	"github.com/example/ride-hailing/internal/eta"
	"github.com/example/ride-hailing/internal/geo"
	httpapi "github.com/example/ride-hailing/internal/http"
	"github.com/example/ride-hailing/internal/ingest"
	"github.com/example/ride-hailing/internal/lifecycle"
	"github.com/example/ride-hailing/internal/logging"
	"github.com/example/ride-hailing/internal/loyalty"
	"github.com/example/ride-hailing/internal/matcher"
	"github.com/example/ride-hailing/internal/payments"
	"github.com/example/ride-hailing/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("error").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	// Presence index: shared Redis when configured, in-process otherwise.
	var presence geo.Geo
	if cfg.RedisAddr != "" {
		presence = geo.NewRedisGeo(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		logger.Info("using redis presence index", "addr", cfg.RedisAddr)
	} else {
		presence = geo.NewIndex()
		logger.Info("using in-memory presence index")
	}

	var store storage.RideStore
	var ledger loyalty.Ledger
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		if os.Getenv("MIGRATE") == "true" {
			if err := runMigrations(pg.DB()); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		store = pg
		ledger = loyalty.NewPostgresLedger(pg.DB())
	} else {
		store = storage.NewMemoryStore()
		ledger = loyalty.NewMemoryLedger()
		logger.Warn("no PG_DSN set, state is in-memory and volatile")
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	var push dispatch.PushSender
	if cfg.FCMEndpoint != "" {
		push = dispatch.NewFCMPush(cfg.FCMEndpoint, cfg.FCMKey)
	}
	// Broadcast mode skips nearby filtering and offers every connected driver
	// the ride; the selector narrows fan-out to the closest candidates.
	var selector dispatch.RecipientSelector
	if !cfg.BroadcastAll {
		svc := &matcher.Service{
			Geo:             presence,
			DefaultSpeedMps: cfg.DefaultSpeedMps,
			TopN:            cfg.DispatchTopN,
		}
		if cfg.OSRMEndpoint != "" {
			svc.ETAClient = eta.NewOSRMClient(cfg.OSRMEndpoint)
			svc.ETACache = eta.NewCache(cfg.ETACacheTTL)
		}
		selector = svc
	}
	notifier := dispatch.NewNotifier(dispatch.NewRegistry(), selector, push, logger)

	engine := &lifecycle.Engine{
		Store:         store,
		Notifier:      notifier,
		Presence:      presence,
		Loyalty:       ledger,
		PointsPerRide: cfg.LoyaltyPointsPerRide,
		Logger:        logger,
	}

	var gateway payments.Gateway
	switch cfg.PaymentGateway {
	case "stripe":
		if cfg.StripeAPIKey != "" {
			gateway = payments.NewStripeClient(cfg.StripeAPIKey, cfg.StripeCurrency)
		}
	default:
		if cfg.MpesaKey != "" {
			gateway = payments.NewMpesaClient(cfg.MpesaBaseURL, cfg.MpesaKey, cfg.MpesaSecret,
				cfg.MpesaShortCode, cfg.MpesaPasskey, cfg.MpesaCallbackURL)
		}
	}
	if gateway == nil {
		logger.Warn("no payment gateway credentials, pay endpoint disabled")
	}

	var verifier auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewJWTVerifier(cfg.JWTSecret)
	} else {
		logger.Warn("no JWT_SECRET set, trusting caller-supplied ids")
	}

	api := httpapi.New(httpapi.Deps{
		Engine:   engine,
		Notifier: notifier,
		Presence: presence,
		Ledger:   ledger,
		Payments: gateway,
		Kafka:    producer,
		Verifier: verifier,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("ride-hailing api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

func runMigrations(db *sql.DB) error {
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}
