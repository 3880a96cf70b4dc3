package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/lazysignup-go/internal/api"
	"github.com/mcoot/lazysignup-go/internal/config"
	"github.com/mcoot/lazysignup-go/internal/factory"
	"github.com/mcoot/lazysignup-go/internal/services/auth"
	redisstorage "github.com/mcoot/lazysignup-go/internal/storage/redis"
)

const sessionSweepInterval = 10 * time.Minute

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	level, _ := cfg.Level()

	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	factoryCfg := factory.Config{
		AuthConfig: auth.Config{
			SessionDuration: cfg.SessionDuration,
			BcryptCost:      cfg.BcryptCost,
		},
		BlacklistPatterns: cfg.BlacklistPatterns,
		Logger:            logger,
		StorageType:       cfg.Storage,
		DatabaseDSN:       cfg.DatabaseDSN,
	}

	if cfg.Storage == config.StorageRedis {
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = cfg.RedisURL
		factoryCfg.RedisConfig = &redisCfg
	}

	// Create application factory
	app, err := factory.New(factoryCfg)
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	exitCode := 0
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
		os.Exit(exitCode)
	}()

	if cfg.AdminToken == "" {
		logger.Warn("admin token not set, admin endpoints disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:       logger,
		AuthService:  app.AuthService,
		LazyService:  app.LazyService,
		Classifier:   app.Classifier,
		Metrics:      app.Metrics,
		Gatherer:     app.Registry,
		AdminToken:   cfg.AdminToken,
		LazyTTL:      cfg.LazyTTL,
		SecureCookie: cfg.SecureCookie,
	})

	serverConfig := api.DefaultServerConfig()
	serverConfig.Addr = cfg.Addr
	server := api.NewServer(router, serverConfig, logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		sweepSessions(ctx, app.AuthService, logger)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return server.Shutdown(context.Background())
	})

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.Storage),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		exitCode = 1
	}

	logger.Info("server stopped")
}

// sweepSessions periodically drops expired sessions until ctx is done
func sweepSessions(ctx context.Context, authService *auth.Service, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := authService.CleanExpiredSessions(); n > 0 {
				logger.Debug("expired sessions removed", slog.Int("count", n))
			}
		}
	}
}
