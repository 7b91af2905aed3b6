package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/authgate/internal/api"
	"github.com/edvin/authgate/internal/audit"
	"github.com/edvin/authgate/internal/config"
	"github.com/edvin/authgate/internal/db"
	"github.com/edvin/authgate/internal/logging"
	"github.com/edvin/authgate/internal/oidc"
	"github.com/edvin/authgate/internal/session"
)

const sweepInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store: Postgres when configured, in-memory otherwise.
	var pool *pgxpool.Pool
	var store session.Store
	if cfg.DatabaseURL != "" {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		pool, err = db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		store = session.NewPostgresStore(pool)
	} else {
		logger.Warn().Msg("no DATABASE_URL configured, sessions are in-memory and lost on restart")
		store = session.NewMemoryStore()
	}

	// Discovery must succeed before serving: without real endpoints there is
	// no safe way to send anyone to the provider.
	resolver, err := oidc.NewResolver(ctx, cfg.IssuerURL, cfg.DiscoveryTTL, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("issuer", cfg.IssuerURL).Msg("provider discovery failed")
	}

	client := oidc.NewClient(resolver, cfg.ClientID, cfg.ClientSecret, cfg.CallbackURL(), logger)
	manager := session.NewManager(store, []byte(cfg.SessionSecret), cfg.SessionTTL)

	var sink audit.Sink
	if pool != nil {
		sink = audit.NewPostgresSink(pool)
	}
	auditor := audit.NewLogger(sink, logger)
	defer auditor.Close()

	srv := api.NewServer(logger, client, manager, auditor, pool, cfg)

	httpServer := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting authgate server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				removed, err := store.DeleteExpired(gctx)
				if err != nil {
					logger.Error().Err(err).Msg("session sweep failed")
				} else if removed > 0 {
					logger.Debug().Int64("removed", removed).Msg("swept expired sessions")
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
