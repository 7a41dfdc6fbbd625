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

	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/portal/internal/portal/activity"
	"github.com/aussiebroadwan/portal/internal/portal/audit"
	"github.com/aussiebroadwan/portal/internal/portal/domain"
	httpapi "github.com/aussiebroadwan/portal/internal/portal/http"
	"github.com/aussiebroadwan/portal/internal/portal/metrics"
	"github.com/aussiebroadwan/portal/internal/portal/service"
	"github.com/aussiebroadwan/portal/internal/portal/store"
	"github.com/aussiebroadwan/portal/internal/portal/store/drivers/postgres"
	"github.com/aussiebroadwan/portal/internal/portal/store/drivers/sqlite"
	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/cryptox"
	"github.com/aussiebroadwan/portal/pkg/jwtx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags.
var BuildVersion = "v0.1.0"

// Application owns every long lived dependency of the portal service.
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockx.Clock

	db         store.Store
	keyManager *jwtx.KeyManager
	redis      redis.UniversalClient
	tracker    activity.Tracker
	audit      *audit.Dispatcher
	metrics    *metrics.Metrics

	issuer       *service.Issuer
	authService  *service.AuthService
	formService  *service.FormService
	adminService *service.AdminService
	housekeeping *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:   cfg,
		clock: clockx.Real(),
		logger: slogx.New(slogx.Config{
			Service: "portal",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	cryptox.SetPepperPath(cfg.PepperFile)
	if err := cryptox.LoadPepper(); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	km, err := InitKeys(cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = km

	if err := app.initActivity(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initAudit()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("portal starting", "addr", app.cfg.Addr, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.stopBackground()
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

// Shutdown stops the server, then drains the audit queue before the
// store closes.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down portal...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeeping.Stop()

	if err := app.audit.Close(ctx); err != nil {
		app.logger.Error("audit queue not fully drained", "error", err, "dropped", app.audit.Dropped())
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("portal stopped")
	return nil
}

// Handler is the fully wired HTTP handler, for embedding the portal in
// another server or a test.
func (app *Application) Handler() http.Handler { return app.router }

func (app *Application) stopBackground() {
	app.housekeeping.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()
	_ = app.audit.Close(ctx)
	_ = app.db.Close()
}

func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case "postgres":
		db, err = postgres.NewStore(ctx, app.cfg.DatabaseURL, postgres.Options{})
	default:
		db, err = sqlite.NewStore(app.cfg.DatabaseFile)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied", "driver", app.cfg.DatabaseDriver)
	return nil
}

func (app *Application) initActivity(ctx context.Context) error {
	acfg := activity.Config{
		IdleTimeout: app.cfg.SessionIdleTimeout,
		// An ended marker is only useful while an access token issued
		// before it could still be presented.
		Retention: app.cfg.AccessTTL,
		RecordTTL: app.cfg.RefreshTTL,
	}

	if app.cfg.RedisAddr == "" {
		app.tracker = activity.NewMemoryTracker(acfg, app.clock)
		app.logger.Info("activity tracker in memory", "idle_timeout", acfg.IdleTimeout)
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.redis = rdb
	app.tracker = activity.NewRedisTracker(rdb, app.cfg.RedisPrefix, acfg, app.clock)
	app.logger.Info("activity tracker on redis", "addr", app.cfg.RedisAddr, "idle_timeout", acfg.IdleTimeout)
	return nil
}

func (app *Application) initAudit() {
	sink := audit.MultiSink{
		audit.StoreSink{Log: app.db.AuditLog()},
		audit.LogSink{Logger: app.logger},
	}
	app.audit = audit.NewDispatcher(audit.Config{
		BufferSize: app.cfg.AuditBufferSize,
		DropIfFull: app.cfg.AuditDropIfFull,
		Logger:     app.logger,
		OnDrop: func(domain.AuditEntry) {
			app.metrics.AuditDropped()
		},
	}, sink)
}

func (app *Application) initServices() {
	app.issuer = &service.Issuer{
		Store:       app.db,
		KeyManager:  app.keyManager,
		Clock:       app.clock,
		Audit:       app.audit,
		Metrics:     app.metrics,
		TokenIssuer: app.cfg.Issuer,
		AccessTTL:   app.cfg.AccessTTL,
		RefreshTTL:  app.cfg.RefreshTTL,
		InviteTTL:   app.cfg.InviteTTL,
		Rotation:    app.cfg.RefreshRotation,
	}
	guard := &service.Guard{Clock: app.clock, Audit: app.audit, Metrics: app.metrics}
	lockout := service.NewLockout(service.LockoutConfig{}, app.clock)

	app.authService = &service.AuthService{
		Store:    app.db,
		Issuer:   app.issuer,
		Guard:    guard,
		Lockout:  lockout,
		Activity: app.tracker,
		Clock:    app.clock,
		Audit:    app.audit,
		Metrics:  app.metrics,
	}
	app.formService = &service.FormService{
		Store:  app.db,
		Issuer: app.issuer,
		Guard:  guard,
		Clock:  app.clock,
		Audit:  app.audit,
	}
	app.adminService = &service.AdminService{
		Store:    app.db,
		Issuer:   app.issuer,
		Activity: app.tracker,
		Clock:    app.clock,
		Audit:    app.audit,
	}

	app.housekeeping = service.NewHousekeepingService(app.db, app.tracker, app.logger, app.cfg.HousekeepingInterval)
	app.housekeeping.Lockout = lockout
	app.housekeeping.Metrics = app.metrics
	app.housekeeping.Clock = app.clock
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.keyManager.KeySet(), BuildVersion, app.db, app.logger)
	router.Issuer = app.issuer
	router.AuthService = app.authService
	router.FormService = app.formService
	router.Admin = app.adminService
	router.Activity = app.tracker
	router.Metrics = app.metrics
	router.PublicBaseURL = app.cfg.PublicBaseURL
	router.Env = app.cfg.Env
	router.Clock = app.clock
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:              app.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
