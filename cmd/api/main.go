package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tableservice-platform/internal/abuse"
	"tableservice-platform/internal/auth"
	"tableservice-platform/internal/config"
	"tableservice-platform/internal/metrics"
	"tableservice-platform/internal/notify"
	"tableservice-platform/internal/realtime"
	"tableservice-platform/internal/telemetry"
	"tableservice-platform/migrations"
	"tableservice-platform/pkg/logger"
	"tableservice-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	flushTelemetry, err := telemetry.Init(cfg.Telemetry.SentryDSN, cfg.App.Env, version)
	if err != nil {
		log.Warn("sentry init failed, continuing without it", "err", err)
	}
	defer flushTelemetry()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := migrations.Apply(rootCtx, db); err != nil {
		log.Error("schema apply failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	d := deps{Metrics: m}
	if cfg.Abuse.RateCounter == config.RateCounterRedis {
		d.Counter = abuse.NewRedisCounter(rdb, cfg.Abuse.Window)
	}
	if cfg.Realtime.Mirror == config.MirrorRedis {
		d.Mirror = realtime.NewRedisMirror(rdb, cfg.Realtime.MirrorTTL)
	}
	if cfg.HasTransport(config.TransportMQTT) {
		client, err := realtime.ConnectMQTT(cfg.Realtime.MQTT, log)
		if err != nil {
			log.Error("mqtt init failed", "err", err)
			os.Exit(1)
		}
		b := realtime.NewMQTTBroadcaster(client, cfg.Realtime.MQTT.TopicPrefix)
		defer b.Close()
		d.Broadcasters = append(d.Broadcasters, b)
	}
	if len(cfg.Events.KafkaBrokers) > 0 {
		stream := realtime.NewKafkaStream(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		defer stream.Close()
		d.Stream = stream
	}
	if d.Provider, err = notify.NewProvider(cfg.Push); err != nil {
		log.Error("push init failed", "err", err)
		os.Exit(1)
	}

	a := newApp(cfg, authManager, postgresStores(db), d)

	expiryDone := make(chan struct{})
	go func() {
		defer close(expiryDone)
		a.silences.RunExpiry(rootCtx, cfg.Abuse.SilenceSweepEvery)
	}()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, a.handlers, auth.RequireAccessToken(authManager), promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(log.Handler(), slog.LevelError),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// no more events may be produced once Wait starts
	select {
	case <-expiryDone:
	case <-shutdownCtx.Done():
	}

	// let in-flight realtime deliveries finish before closing their clients
	done := make(chan struct{})
	go func() {
		a.dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("realtime deliveries still pending at shutdown")
	}
}
