// Command authgate runs the authentication HTTP server.
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

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/MrEthical07/authgate"
	"github.com/MrEthical07/authgate/api"
	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/internal/config"
	otelexport "github.com/MrEthical07/authgate/metrics/export/otel"
	promexport "github.com/MrEthical07/authgate/metrics/export/prometheus"
	"github.com/MrEthical07/authgate/notify"
)

func main() {
	if err := run(); err != nil {
		slog.Error("authgate exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authCfg, err := cfg.Auth()
	if err != nil {
		return err
	}

	// -------- REDIS --------
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	// -------- IDENTITIES --------
	store, err := openIdentityStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	logger.Info("identity store ready", "driver", cfg.DBDriver)

	notifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}

	builder := authgate.New().
		WithConfig(authCfg).
		WithRedis(rdb).
		WithIdentityStore(store).
		WithNotifier(notifier).
		WithLogger(logger)
	if cfg.AuditEnabled {
		builder = builder.WithAuditSink(authgate.NewSlogSink(logger.With("component", "audit")))
	}
	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = engine.Ping(pingCtx)
	cancel()
	if err != nil {
		// Health reports Redis as down until it recovers; keep serving.
		logger.Warn("redis not reachable at startup", "error", err)
	}

	// -------- METRICS --------
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		switch cfg.MetricsExporter {
		case "prometheus":
			metricsHandler = promexport.NewPrometheusExporter(engine).Handler()
		case "otel":
			mp, err := newMeterProvider(ctx, cfg.OTLPEndpoint, cfg.OTLPInsecure, 10*time.Second)
			if err != nil {
				return fmt.Errorf("otel: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = mp.Shutdown(sctx)
			}()
			exp, err := otelexport.NewOTelExporter(otel.Meter(serviceName), engine)
			if err != nil {
				return fmt.Errorf("otel: %w", err)
			}
			defer func() { _ = exp.Close() }()
		}
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewServer(engine, api.Options{
			Logger:         logger,
			TrustProxy:     cfg.TrustProxy,
			MetricsHandler: metricsHandler,
		}),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg *config.AppConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}

// openIdentityStore migrates (when enabled) and opens the configured store.
// Closing the store closes its pool.
func openIdentityStore(ctx context.Context, cfg *config.AppConfig) (identity.Store, error) {
	if cfg.DBDriver == config.DriverMemory {
		return identity.NewMemoryStore(), nil
	}

	if cfg.AutoMigrate {
		if err := identity.Migrate(cfg.DBDriver, cfg.DatabaseURL, "up"); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := identity.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return identity.NewPostgresStore(db), nil
	case config.DriverSQLite:
		db, err := identity.OpenSQLite(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return identity.NewSQLiteStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func newNotifier(cfg *config.AppConfig, logger *slog.Logger) (notify.Notifier, error) {
	if cfg.MailProvider == "resend" {
		return notify.NewResendNotifier(notify.ResendConfig{
			APIKey: cfg.ResendAPIKey,
			From:   cfg.MailFrom,
		})
	}
	return notify.LogNotifier{Logger: logger.With("component", "mail")}, nil
}
