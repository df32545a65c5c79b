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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/CherreraTEG/OneSite/internal/audit"
	auditkafka "github.com/CherreraTEG/OneSite/internal/audit/kafka"
	auditstore "github.com/CherreraTEG/OneSite/internal/audit/store"
	"github.com/CherreraTEG/OneSite/internal/authn"
	authnhandler "github.com/CherreraTEG/OneSite/internal/authn/handler"
	"github.com/CherreraTEG/OneSite/internal/directory"
	"github.com/CherreraTEG/OneSite/internal/lockout"
	lockouthandler "github.com/CherreraTEG/OneSite/internal/lockout/handler"
	lockoutstore "github.com/CherreraTEG/OneSite/internal/lockout/store"
	"github.com/CherreraTEG/OneSite/internal/platform/config"
	"github.com/CherreraTEG/OneSite/internal/platform/health"
	"github.com/CherreraTEG/OneSite/internal/platform/httpserver"
	"github.com/CherreraTEG/OneSite/internal/platform/logger"
	"github.com/CherreraTEG/OneSite/internal/platform/middleware"
	"github.com/CherreraTEG/OneSite/internal/platform/postgres"
	"github.com/CherreraTEG/OneSite/internal/platform/redis"
	"github.com/CherreraTEG/OneSite/internal/platform/tracing"
	"github.com/CherreraTEG/OneSite/internal/telemetry"
	telemetryhandler "github.com/CherreraTEG/OneSite/internal/telemetry/handler"
	"github.com/CherreraTEG/OneSite/internal/token"
	"github.com/CherreraTEG/OneSite/internal/token/revocation"
	httptransport "github.com/CherreraTEG/OneSite/internal/transport/http"
)

const auditBuffer = 1024

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.ServiceName)
	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run wires dependencies bottom-up and blocks until SIGINT or SIGTERM.
func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.ServiceName, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	readiness := health.New()

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		readiness.Register(rdb)
	} else {
		log.Warn("redis not configured; lockout state is process-local")
	}

	db, err := postgres.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		readiness.Register(db)
		if cfg.Postgres.Migrate {
			if err := postgres.RunMigrations(db.DB); err != nil {
				return err
			}
		}
	} else {
		log.Warn("database not configured; audit history is process-local")
	}

	// Lockout tracker.
	var lockStore lockout.Store = lockoutstore.NewMemoryStore()
	if rdb != nil {
		lockStore = lockoutstore.NewRedisStore(rdb.Client)
	}
	tracker, err := lockout.New(lockStore,
		lockout.WithConfig(lockout.Config{
			MaxAttempts:   cfg.Lockout.MaxAttempts,
			AttemptWindow: cfg.Lockout.AttemptWindow,
			LockDuration:  cfg.Lockout.LockDuration,
		}),
		lockout.WithLogger(log),
		lockout.WithMetrics(lockout.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	// Token lifecycle.
	revocations, err := newRevocationStore(cfg, rdb, db, log)
	if err != nil {
		return err
	}
	tokens, err := token.New(cfg.Token.SigningKey, revocations,
		token.WithIssuer(cfg.Token.Issuer),
		token.WithDefaultTTL(cfg.Token.AccessTTL),
		token.WithLogger(log),
		token.WithMetrics(token.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}

	// Audit trail.
	var attempts audit.Store = auditstore.NewMemoryStore()
	if db != nil {
		attempts = auditstore.NewPostgresStore(db.DB)
	}
	publisherOpts := []audit.PublisherOption{
		audit.WithAsyncBuffer(auditBuffer),
		audit.WithPublisherLogger(log),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := auditkafka.New(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			return err
		}
		defer sink.Close()
		if err := sink.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Kafka.AuditTopic, "error", err)
		}
		readiness.Register(sink)
		publisherOpts = append(publisherOpts, audit.WithSink(sink))
	}
	publisher := audit.NewPublisher(attempts, publisherOpts...)
	defer publisher.Close()

	// Directory and authenticator.
	client := directory.NewClient(cfg.Directory.Domain, cfg.Directory.BaseDN,
		directory.WithBindTimeout(cfg.Directory.BindTimeout),
		directory.WithClientLogger(log),
	)
	negotiator, err := directory.NewNegotiator(client,
		directory.WithCache(directory.NewTransportCache()),
		directory.WithTrustAnchor(cfg.Directory.CACertFile),
		directory.WithLogger(log),
		directory.WithMetrics(directory.NewMetrics(reg)),
		// One bind timeout per candidate transport.
		directory.WithNegotiationTimeout(3*cfg.Directory.BindTimeout),
	)
	if err != nil {
		return err
	}
	authenticator, err := authn.New(client, negotiator, tracker, authn.Endpoint{
		Host:   cfg.Directory.Host,
		Port:   cfg.Directory.Port,
		Policy: directory.PolicyFor(cfg.Directory.UseTLS),
		Domain: cfg.Directory.Domain,
	},
		authn.WithLogger(log),
		authn.WithMetrics(authn.NewMetrics(reg)),
		authn.WithAudit(publisher),
	)
	if err != nil {
		return err
	}

	// Security telemetry.
	limiter := middleware.NewIPLimiter(cfg.LoginRateLimit.PerMinute, cfg.LoginRateLimit.Burst, log)
	collector, err := telemetry.New(attempts, tracker,
		telemetry.WithRevocations(tokens),
		telemetry.WithHealth(readiness),
		telemetry.WithThrottle(limiter),
		telemetry.WithLogger(log),
		telemetry.WithMetrics(telemetry.NewMetrics(reg)),
	)
	if err != nil {
		return err
	}
	go collector.Run(ctx, cfg.Telemetry.Interval)
	go runRetention(ctx, collector, cfg.Telemetry.RetentionDays, log)

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:   log,
		Gatherer: reg,
		Health:   readiness,
	},
		authnhandler.New(authenticator, tokens, log,
			authnhandler.WithLoginThrottle(limiter.Middleware),
			authnhandler.WithTokenTTL(cfg.Token.AccessTTL),
		),
		lockouthandler.New(tracker, tokens, log),
		telemetryhandler.New(collector, readiness, tokens, log),
	)
	srv := httpserver.New(cfg.Addr, tracing.HTTPMiddleware(cfg.ServiceName)(router))

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRevocationStore picks the configured backend, falling back to memory
// when the backing service is absent, and fronts it with a positive-hit cache.
func newRevocationStore(cfg config.Server, rdb *redis.Client, db *postgres.DB, log *slog.Logger) (token.RevocationStore, error) {
	var store revocation.Store
	switch {
	case cfg.Token.RevocationBackend == "redis" && rdb != nil:
		store = revocation.NewRedisTRL(rdb.Client)
	case cfg.Token.RevocationBackend == "postgres" && db != nil:
		store = revocation.NewPostgresTRL(db.DB)
	default:
		if cfg.Token.RevocationBackend != "memory" {
			log.Warn("revocation backend unavailable; using memory", "backend", cfg.Token.RevocationBackend)
		}
		store = revocation.NewInMemoryTRL()
	}
	if cfg.Token.RevocationCacheTTL <= 0 {
		return store, nil
	}
	cached, err := revocation.NewCachedTRL(store, cfg.Token.RevocationCacheTTL)
	if err != nil {
		return nil, err
	}
	return cached, nil
}

// runRetention purges audit data past the retention period once a day.
func runRetention(ctx context.Context, collector *telemetry.Collector, days int, log *slog.Logger) {
	if days <= 0 {
		return
	}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := collector.Cleanup(ctx, days); err != nil {
				log.Error("audit retention cleanup failed", "error", err)
			}
		}
	}
}
