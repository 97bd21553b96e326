package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/madhavpai09/velo/internal/arbiter"
	"github.com/madhavpai09/velo/internal/broadcast"
	"github.com/madhavpai09/velo/internal/config"
	"github.com/madhavpai09/velo/internal/directory"
	"github.com/madhavpai09/velo/internal/dispatch"
	"github.com/madhavpai09/velo/internal/eta"
	"github.com/madhavpai09/velo/internal/geo"
	httpapi "github.com/madhavpai09/velo/internal/http"
	"github.com/madhavpai09/velo/internal/ingest"
	"github.com/madhavpai09/velo/internal/logging"
	"github.com/madhavpai09/velo/internal/otp"
	"github.com/madhavpai09/velo/internal/payments"
	"github.com/madhavpai09/velo/internal/ride"
	"github.com/madhavpai09/velo/internal/schoolpool"
	"github.com/madhavpai09/velo/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("error").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.NewLogger(cfg.LogLevel)

	var store storage.Store
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			migrate(log, cfg.PGDSN)
		}
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
		log.Info("storage: postgres")
	} else {
		store = storage.NewMemoryStore()
		log.Info("storage: memory")
	}

	var index geo.Index
	if cfg.RedisAddr != "" {
		ri := geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
		defer ri.Close()
		index = ri
		log.Info("geo index: redis", "addr", cfg.RedisAddr)
	} else {
		index = geo.NewMemoryIndex()
		log.Info("geo index: memory")
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		log.Info("kafka producer enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	var pay payments.Gateway = payments.Nop{}
	if os.Getenv("STRIPE_API_KEY") != "" {
		pay = payments.NewStripeClient()
		log.Info("payments: stripe")
	}

	hub := dispatch.NewHub(logging.Component(log, "hub"))
	events := dispatch.Fanout{hub}
	if cfg.WebhookEndpoint != "" {
		events = append(events, dispatch.NewWebhook(cfg.WebhookEndpoint))
		log.Info("webhook fallback enabled", "endpoint", cfg.WebhookEndpoint)
	}

	dir := directory.New(store, index, cfg.LivenessTimeout, logging.Component(log, "directory"))
	est := eta.NewEstimator(cfg.OSRMEndpoint, cfg.DefaultSpeedMps)
	bc := broadcast.New(store, store, dir, index, est, events, cfg.OfferFanout, cfg.OfferWindow, logging.Component(log, "broadcast"))
	arb := arbiter.New(store, store, store, pay, events, logging.Component(log, "arbiter"))
	verifier := otp.NewVerifier(store, logging.Component(log, "otp"))
	rides := ride.NewService(store, store, store, dir, bc, arb, verifier, pay, events, cfg.OfferWindow, logging.Component(log, "ride"))
	sched := schoolpool.New(store, dir, events, logging.Component(log, "schoolpool"))

	if err := rides.Recover(context.Background()); err != nil {
		log.Warn("recovery sweep failed", "error", err)
	}

	api := httpapi.NewServer(rides, dir, sched, hub, producer, logging.Component(log, "http"))

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
		log.Info("dispatch api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

func migrate(log *slog.Logger, dsn string) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Info("migration skipped, db open failed", "error", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		log.Info("migration skipped, file missing", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		log.Info("migration exec error", "error", err)
		return
	}
	log.Info("migration applied", "file", "001_init.sql")
}
