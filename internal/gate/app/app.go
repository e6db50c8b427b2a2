package app

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

	"github.com/aussiebroadwan/eventgate/internal/gate/domain"
	httpapi "github.com/aussiebroadwan/eventgate/internal/gate/http"
	"github.com/aussiebroadwan/eventgate/internal/gate/ratelimit"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/internal/gate/store"
	"github.com/aussiebroadwan/eventgate/internal/gate/store/drivers/postgres"
	"github.com/aussiebroadwan/eventgate/internal/gate/store/drivers/sqlite"
	"github.com/aussiebroadwan/eventgate/pkg/cryptox"
	"github.com/aussiebroadwan/eventgate/pkg/httpx"
	"github.com/aussiebroadwan/eventgate/pkg/jwtx"
	"github.com/aussiebroadwan/eventgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gate with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db    store.Store
	codec *jwtx.Codec

	// Rate counting. Exactly one of memCounter and redisCounter is set.
	memCounter   *ratelimit.MemoryCounter
	redisCounter *ratelimit.RedisCounter

	// Services
	activity            *service.ActivityRecorder
	validator           *service.SessionValidator
	accounts            *service.AccountService
	governor            *ratelimit.Governor
	housekeepingService *service.HousekeepingService

	// HTTP servers. opsServer is nil when METRICS_PORT is 0.
	server    *http.Server
	opsServer *http.Server
	router    *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "eventgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Set pepper path for password hashing
	cryptox.SetPepperPath(app.cfg.PepperFile)

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		AccessSecret:  []byte(cfg.JWTSecret),
		AccessTTL:     cfg.JWTExpiresIn,
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		RefreshTTL:    cfg.JWTRefreshExpiresIn,
		Issuer:        cfg.JWTIssuer,
	})
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}
	app.codec = codec

	if err := app.initRateLimiting(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()

	if err := app.bootstrap(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Handler returns the gate's public HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.router
}

// OpsHandler returns the handler behind METRICS_PORT.
func (app *Application) OpsHandler() http.Handler {
	return app.router.OpsHandler()
}

// Start launches the background workers. Run calls it; embedders serving
// Handler themselves call it directly and pair it with Shutdown.
func (app *Application) Start() {
	app.activity.Start()
	app.housekeepingService.Start()
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.Start()

	app.logger.Info("gate starting",
		"port", app.cfg.Port,
		"metrics_port", app.cfg.MetricsPort,
		"version", BuildVersion,
		"session_timeout", app.cfg.SessionTimeout,
		"rate_limit_disabled", app.cfg.DisableRateLimit,
	)

	// Start servers in goroutines
	serverErrors := make(chan error, 2)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()
	if app.opsServer != nil {
		go func() {
			serverErrors <- app.opsServer.ListenAndServe()
		}()
	}

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if shutdownErr := app.Shutdown(); shutdownErr != nil {
			app.logger.Error("shutdown after server failure", "error", shutdownErr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gate...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	for _, srv := range []*http.Server{app.server, app.opsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			app.logger.Error("graceful server shutdown failed", "addr", srv.Addr, "error", err)
			if err := srv.Close(); err != nil {
				app.logger.Error("error closing server", "addr", srv.Addr, "error", err)
			}
		}
	}

	app.housekeepingService.Stop()

	// Flush pending lastActivity writes while the database is still open.
	app.activity.Stop()

	if app.redisCounter != nil {
		if err := app.redisCounter.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gate stopped")
	return nil
}

// initDatabase opens the user directory and applies migrations. Postgres
// is used when DATABASE_URL is set, SQLite otherwise.
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db     store.Store
		driver string
		err    error
	)
	if app.cfg.DatabaseURL != "" {
		driver = "postgres"
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL)
	} else {
		driver = "sqlite"
		db, err = sqlite.NewStore(fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile))
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s database: %w", driver, err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", driver)
	return nil
}

// initRateLimiting picks the counter backend and builds the governor.
func (app *Application) initRateLimiting(ctx context.Context) error {
	var counter ratelimit.Counter
	if app.cfg.RedisURL != "" {
		rc, err := ratelimit.NewRedisCounterFromURL(ctx, app.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		app.redisCounter = rc
		counter = rc
		app.logger.Info("rate counters shared via redis")
	} else {
		app.memCounter = ratelimit.NewMemoryCounter()
		counter = app.memCounter
		app.logger.Info("rate counters kept in memory")
	}

	app.governor = ratelimit.NewGovernor(ratelimit.Config{
		Counter:  counter,
		Rules:    app.cfg.RateRules,
		Speed:    app.cfg.SpeedRule,
		Disabled: app.cfg.DisableRateLimit,
		Key:      httpx.ClientIP(app.cfg.TrustProxy),
		Deny:     httpapi.Deny,
	})
	if app.cfg.DisableRateLimit {
		app.logger.Warn("rate limiting disabled")
	}
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.activity = service.NewActivityRecorder(app.db.Users(), app.logger, app.cfg.ActivityQueueSize)

	app.validator = service.NewSessionValidator(app.codec, app.db.Users(), app.activity, service.SessionConfig{
		Timeout:       app.cfg.SessionTimeout,
		LookupTimeout: app.cfg.DirectoryTimeout,
	})

	app.accounts = &service.AccountService{
		Store:          app.db,
		Tokens:         app.codec,
		SessionTimeout: app.cfg.SessionTimeout,
	}

	var targets []service.SweepTarget
	if app.memCounter != nil {
		targets = append(targets, service.SweepTarget{Name: "rate_buckets", Sweeper: app.memCounter})
	}
	app.housekeepingService = service.NewHousekeepingService(app.logger, app.cfg.SweepInterval, targets...)
}

func (app *Application) bootstrap(ctx context.Context) error {
	created, err := app.accounts.Bootstrap(slogx.WithContext(ctx, app.logger), domain.BootstrapAdmin{
		Email:    app.cfg.BootstrapEmail,
		Password: app.cfg.BootstrapPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap super admin: %w", err)
	}
	if !created && app.cfg.BootstrapEmail != "" {
		app.logger.Info("directory already populated, bootstrap skipped")
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.validator,
		app.governor,
		app.db,
		BuildVersion,
		app.logger,
	)

	router.Accounts = app.accounts
	router.AccessTTL = app.codec.AccessTTL()
	if app.redisCounter != nil {
		router.RateStore = app.redisCounter
	}
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}

	if app.cfg.MetricsPort != 0 {
		app.opsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", app.cfg.MetricsPort),
			Handler:           router.OpsHandler(),
			ReadHeaderTimeout: 3 * time.Second,
		}
	}
}
