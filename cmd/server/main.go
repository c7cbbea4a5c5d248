/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shift engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and config.yaml + SHIFT_* environment
  2. Build the zap logger
  3. Open the SQLite store
  4. Build the engine, sweep lock and sweep scheduler
  5. Configure the HTTP router and serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config        Path to a config file (default: ./config/config.yaml or ./config.yaml)
  -issue-token   Print a signed token for -actor and exit
  -actor         Actor id embedded in the token
  -name          Display name embedded in the token
  -admin         Grant the admin capability
  -ttl           Token lifetime (default: 24h)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweep scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database and Redis connections

EXAMPLES:
  # Run with the defaults and an in-memory database
  SHIFT_AUTH_JWT_SECRET=dev-secret-change-me SHIFT_DB_PATH=":memory:" ./server

  # Issue an admin token for local testing
  ./server -issue-token -actor=admin-1 -name="Office" -admin

SEE ALSO:
  - config/config.go: Keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/angau/shift-engine/api"
	"github.com/angau/shift-engine/config"
	"github.com/angau/shift-engine/logger"
	"github.com/angau/shift-engine/shift"
	"github.com/angau/shift-engine/store/sqlite"
	"github.com/angau/shift-engine/sweeplock"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a config file")
	issue := flag.Bool("issue-token", false, "Print a signed token and exit")
	actorID := flag.String("actor", "", "Actor id for -issue-token")
	name := flag.String("name", "", "Display name for -issue-token")
	admin := flag.Bool("admin", false, "Grant the admin capability for -issue-token")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime for -issue-token")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *issue {
		if err := issueToken(cfg, shift.Actor{ID: shift.ActorID(*actorID), Name: *name, Admin: *admin}, *ttl); err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		return
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func issueToken(cfg *config.Config, actor shift.Actor, ttl time.Duration) error {
	if actor.ID == "" {
		return errors.New("-actor is required")
	}
	tok, expires, err := api.NewAuthenticator(cfg.Auth.JWTSecret).IssueToken(actor, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	fmt.Fprintf(os.Stderr, "expires %s\n", expires.Format(time.RFC3339))
	return nil
}

func run(cfg *config.Config, zl *zap.Logger) error {
	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	engine := shift.NewEngine(shift.Deps{
		Store:     store,
		Directory: store,
		Rules:     cfg.Rules.Shift(),
		Notifier:  shift.LogNotifier{Logger: zl.Named("notify")},
		Logger:    zl,
	})

	var locker sweeplock.Locker = sweeplock.NewLocal()
	if cfg.Redis.Addr != "" {
		rl, err := sweeplock.NewRedis(cfg.Redis, cfg.Sweeper.LockTTL, zl.Named("sweeplock"))
		if err != nil {
			return err
		}
		defer rl.Close()
		locker = rl
		zl.Info("using redis sweep lock", zap.String("addr", cfg.Redis.Addr))
	}

	sweeps := api.NewSweepScheduler(engine.Sweeper, locker, zl.Named("scheduler"))
	sweeps.Enabled = cfg.Sweeper.Enabled
	sweeps.ExpireInterval = cfg.Sweeper.ExpireInterval
	sweeps.AutoClockOutInterval = cfg.Sweeper.AutoClockOutInterval

	handler := api.NewHandler(engine, zl.Named("api"))
	handler.Sweeps = sweeps
	handler.Reset = store

	router := api.NewRouter(handler, api.NewAuthenticator(cfg.Auth.JWTSecret), api.RouterOptions{
		AllowedOrigins: cfg.Server.CORS.AllowOrigins,
		Logger:         zl.Named("http"),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeps.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("server starting", zap.Int("port", cfg.Server.Port), zap.String("db", cfg.DB.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down server")
		sweeps.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	zl.Info("server stopped")
	return nil
}
