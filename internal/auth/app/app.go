package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/sitepass/sitepass/internal/auth/http"
	"github.com/sitepass/sitepass/internal/auth/service"
	"github.com/sitepass/sitepass/internal/auth/store"
	"github.com/sitepass/sitepass/internal/auth/store/drivers/sqlite"
	"github.com/sitepass/sitepass/pkg/cryptox"
	"github.com/sitepass/sitepass/pkg/jwtx"
	"github.com/sitepass/sitepass/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	keyring *jwtx.Keyring

	authService         *service.AuthService
	tokenService        *service.TokenService
	authorizerService   *service.AuthorizerService
	rotationService     *service.RotationService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized: database
// migrated, signing secrets restored (or minted) and routes registered.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg:     cfg,
		keyring: jwtx.NewKeyring(),
		logger: slogx.New(slogx.Config{
			Service: "sitepass",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("sitepass starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down sitepass...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("sitepass stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() error {
	sealer, err := cryptox.NewSealer(app.cfg.MasterKeyPath)
	if err != nil {
		return fmt.Errorf("failed to initialize secret sealer: %w", err)
	}

	app.rotationService = &service.RotationService{
		Store:       app.db,
		Sealer:      sealer,
		Keyring:     app.keyring,
		SecretBytes: app.cfg.SecretBytes,
	}
	if err := app.rotationService.InitializeOnStartup(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize signing secrets: %w", err)
	}

	app.tokenService = &service.TokenService{
		Keyring:    app.keyring,
		Rotation:   app.rotationService,
		Issuer:     app.cfg.Issuer,
		AccessTTL:  app.cfg.AccessTTL,
		RefreshTTL: app.cfg.RefreshTTL,
		Grace:      app.cfg.GracePeriod,
		Leeway:     30 * time.Second,
	}

	app.authService = &service.AuthService{
		Store:              app.db,
		Tokens:             app.tokenService,
		SessionTTL:         app.cfg.SessionTTL,
		RotateRefreshOnUse: app.cfg.RefreshRotateOnUse,
	}

	app.authorizerService = &service.AuthorizerService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.rotationService,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.RotationInterval = app.cfg.RotationInterval
	app.housekeepingService.SecretRetention = app.cfg.SecretRetention

	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyring,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.AuthService = app.authService
	router.TokenService = app.tokenService
	router.AuthorizerService = app.authorizerService
	router.RotationService = app.rotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
