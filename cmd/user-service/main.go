package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	identityhandler "fintech-id/internal/identity/handler"
	"fintech-id/internal/identity/secrets"
	identityservice "fintech-id/internal/identity/service"
	identitystore "fintech-id/internal/identity/store"
	jwttoken "fintech-id/internal/jwt_token"
	otphandler "fintech-id/internal/otp/handler"
	"fintech-id/internal/otp/notifier"
	otpservice "fintech-id/internal/otp/service"
	otpstore "fintech-id/internal/otp/store"
	"fintech-id/internal/platform/config"
	"fintech-id/internal/platform/httpserver"
	"fintech-id/internal/platform/logger"
	"fintech-id/internal/platform/metrics"
	"fintech-id/internal/platform/postgres"
	"fintech-id/internal/platform/redis"
	httptransport "fintech-id/internal/transport/http"
	audit "fintech-id/pkg/platform/audit"
	"fintech-id/pkg/platform/audit/kafka"
	"fintech-id/pkg/platform/audit/publisher"
	auditmemory "fintech-id/pkg/platform/audit/store/memory"
)

const (
	startupTimeout  = 15 * time.Second
	auditBufferSize = 1024
)

// main wires the user-service: credential store, OTP store, delivery channel,
// audit stream and the HTTP surface. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.Error("user-service stopped", "error", err)
		os.Exit(1)
	}
}

type closer func(ctx context.Context) error

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				log.Warn("shutdown step failed", "error", err)
			}
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	health := map[string]httptransport.HealthCheck{}

	tokens, err := jwttoken.NewTokenService(cfg.Token.Secret, jwttoken.WithLogger(log))
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	credentials, tx, db, err := openCredentialStore(startCtx, cfg.Postgres, log)
	if err != nil {
		return err
	}
	if db != nil {
		closers = append(closers, func(context.Context) error { return db.Close() })
		health["postgres"] = db.PingContext
	}

	otpStore, err := openOTPStore(startCtx, cfg.Redis, log, &closers, health)
	if err != nil {
		return err
	}

	delivery, err := openNotifier(cfg.AMQP, log, &closers, health)
	if err != nil {
		return err
	}

	auditStore, err := openAuditStore(startCtx, cfg.Kafka, log, &closers, health)
	if err != nil {
		return err
	}
	events := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(auditBufferSize),
		publisher.WithLogger(log),
	)
	closers = append(closers, func(context.Context) error { events.Close(); return nil })

	identities := identityservice.New(credentials, tx, secrets.NewHasher(0), tokens,
		identityservice.WithLogger(log),
		identityservice.WithMetrics(m),
		identityservice.WithAuditPublisher(events),
		identityservice.WithTokenLifetimes(cfg.Token.AccessTTL, cfg.Token.RefreshTTL),
	)
	otp := otpservice.New(otpStore, credentials, delivery,
		otpservice.WithLogger(log),
		otpservice.WithMetrics(m),
		otpservice.WithAuditPublisher(events),
		otpservice.WithPolicy(cfg.OTP.TTL, cfg.OTP.MaxAttempts, cfg.OTP.CodeLength),
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Metrics:        m,
		Validator:      jwttoken.NewTokenServiceAdapter(tokens),
		CookieName:     cfg.Token.CookieName,
		RequestTimeout: cfg.Server.RequestTimeout,
		Public: []httptransport.Registrar{
			identityhandler.New(identities, cfg.Token.CookieName, cfg.Token.AccessTTL, identityhandler.WithLogger(log)),
		},
		Protected: []httptransport.Registrar{
			otphandler.New(otp, log),
		},
		Health: health,
		Info: map[string]string{
			"app":       "user-service",
			"startedAt": time.Now().UTC().Format(time.RFC3339),
		},
	})

	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.RequestTimeout)
	return serve(ctx, srv, cfg.Server.ShutdownTimeout, log)
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, log *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openCredentialStore picks Postgres when DATABASE_URL is set and the
// in-memory store otherwise.
func openCredentialStore(ctx context.Context, cfg config.Postgres, log *slog.Logger) (identityservice.Store, identityservice.StoreTx, *sql.DB, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory credential store")
		mem := identitystore.NewInMemory()
		return mem, mem, nil, nil
	}
	if cfg.MigrateOnStart {
		if err := postgres.RunMigrations(cfg.URL); err != nil {
			return nil, nil, nil, fmt.Errorf("migrations: %w", err)
		}
	}
	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	st := identitystore.NewPostgres(db)
	return st, newRegistrationPostgresTx(db, st, cfg.TxTimeout), db, nil
}

func openOTPStore(ctx context.Context, cfg config.RedisConfig, log *slog.Logger, closers *[]closer, health map[string]httptransport.HealthCheck) (otpservice.Store, error) {
	client, err := redis.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if client == nil {
		log.Warn("REDIS_URL not set, using in-memory OTP store")
		return otpstore.NewInMemory(), nil
	}
	*closers = append(*closers, func(context.Context) error { return client.Close() })
	health["redis"] = client.Health
	return otpstore.NewRedis(client.Client), nil
}

func openNotifier(cfg config.AMQP, log *slog.Logger, closers *[]closer, health map[string]httptransport.HealthCheck) (otpservice.Notifier, error) {
	if cfg.URL == "" {
		log.Warn("AMQP_URL not set, OTP codes are written to the log")
		return notifier.NewLog(log), nil
	}
	conn, err := notifier.Dial(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, func(context.Context) error { return conn.Close() })
	health["amqp"] = conn.Health
	return notifier.NewAMQP(conn.Channel, cfg.Exchange, cfg.RoutingKey), nil
}

func openAuditStore(ctx context.Context, cfg config.Kafka, log *slog.Logger, closers *[]closer, health map[string]httptransport.HealthCheck) (audit.Store, error) {
	if len(cfg.Brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set, audit events stay in memory")
		return auditmemory.NewInMemoryStore(), nil
	}
	st, err := kafka.New(ctx, cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureTopic(ctx, 1, 1); err != nil {
		log.Warn("audit topic not ensured", "topic", cfg.Topic, "error", err)
	}
	*closers = append(*closers, st.Close)
	health["kafka"] = st.Health
	return st, nil
}
