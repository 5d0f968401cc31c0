package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"fintech-id/internal/gateway"
	jwttoken "fintech-id/internal/jwt_token"
	"fintech-id/internal/platform/config"
	"fintech-id/internal/platform/httpserver"
	"fintech-id/internal/platform/logger"
	"fintech-id/internal/platform/metrics"
)

const limiterCleanupInterval = time.Minute

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, os.Stdout)

	if err := run(cfg, log); err != nil {
		log.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	routes, err := config.LoadGatewayRoutes(cfg.Gateway.RoutesFile, cfg.Gateway.UpstreamURL)
	if err != nil {
		return err
	}

	// The gateway only verifies tokens, so an ephemeral key would reject
	// everything the user-service signs.
	tokens, err := jwttoken.NewTokenService(cfg.Token.Secret,
		jwttoken.WithLogger(log),
		jwttoken.WithRequireStrongKey(),
	)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		Routes:           routes,
		Validator:        jwttoken.NewTokenServiceAdapter(tokens),
		CookieName:       cfg.Token.CookieName,
		TrustedProxies:   cfg.Gateway.TrustedProxies,
		PublicRPS:        cfg.Gateway.PublicRPS,
		PublicBurst:      cfg.Gateway.PublicBurst,
		BreakerThreshold: cfg.Gateway.BreakerThreshold,
		BreakerTimeout:   cfg.Gateway.BreakerTimeout,
		RequestTimeout:   cfg.Server.RequestTimeout,
		Logger:           log,
		Metrics:          metrics.New(prometheus.NewRegistry()),
		Info:             map[string]string{"app": "gateway"},
	})
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	srv := httpserver.New(cfg.Gateway.Addr, gw, cfg.Server.RequestTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		gw.Limiter().Run(limiterCleanupInterval, gctx.Done())
		return nil
	})
	g.Go(func() error {
		log.Info("gateway listening", "addr", srv.Addr, "routes", len(routes.Routes))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
