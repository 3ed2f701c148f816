// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires configuration, storage and services into the HTTP
// stack and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/careerhub/internal/apperr"
	"codeberg.org/oliverandrich/careerhub/internal/config"
	"codeberg.org/oliverandrich/careerhub/internal/csrf"
	"codeberg.org/oliverandrich/careerhub/internal/database"
	"codeberg.org/oliverandrich/careerhub/internal/i18n"
	"codeberg.org/oliverandrich/careerhub/internal/ratelimit"
	"codeberg.org/oliverandrich/careerhub/internal/repository"
	"codeberg.org/oliverandrich/careerhub/internal/services/auth"
	"codeberg.org/oliverandrich/careerhub/internal/services/email"
	"codeberg.org/oliverandrich/careerhub/internal/services/otp"
	"codeberg.org/oliverandrich/careerhub/internal/services/reset"
	"codeberg.org/oliverandrich/careerhub/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Deps are the infrastructure pieces the HTTP stack is built from.
type Deps struct {
	Config  *config.Config
	Repo    *repository.Repository
	Sender  email.Sender
	Limiter ratelimit.Limiter
	Logger  *slog.Logger
	Now     func() time.Time
}

// App is a fully wired application.
type App struct {
	Echo        *echo.Echo
	Housekeeper *Housekeeper
}

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	logger.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	// Database (migrations run on open)
	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := database.Close(db); closeErr != nil {
			logger.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	app, err := New(Deps{
		Config:  cfg,
		Repo:    repository.New(db),
		Sender:  sender,
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(ctx, app, cfg, logger)
}

// New builds the echo instance and background jobs from deps.
func New(d Deps) (*App, error) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.Noop{}
	}
	if d.Sender == nil {
		d.Sender = email.LogSender{Logger: d.Logger}
	}
	cfg := d.Config

	sessions, err := session.NewManager(&cfg.Session, cfg.SecureCookies(),
		session.WithClock(d.Now),
		session.WithLogger(d.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	mailer := email.NewService(d.Sender, cfg.Server.BaseURL)

	svc := &services{
		auth: auth.NewService(d.Repo,
			auth.WithClock(d.Now),
			auth.WithLogger(d.Logger),
		),
		otp: otp.NewService(d.Repo, mailer, cfg.OTP,
			otp.WithClock(d.Now),
			otp.WithLogger(d.Logger),
		),
		reset:    reset.NewService(d.Repo, mailer, cfg.Reset.Expiry, d.Now, d.Logger),
		sessions: sessions,
		csrf:     csrf.New(cfg.CSRF, cfg.SecureCookies(), d.Logger),
		limiter:  d.Limiter,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(d.Logger)

	setupMiddleware(e, cfg, d.Repo, svc, d.Logger)
	setupRoutes(e, d.Repo, svc, cfg, d.Logger)

	return &App{
		Echo:        e,
		Housekeeper: NewHousekeeper(cfg.OTP.PurgeEvery, d.Logger, svc.otp, svc.reset),
	}, nil
}

// newSender returns the SMTP sender or, without an SMTP host, a sender that
// only logs.
func newSender(cfg *config.Config, logger *slog.Logger) (email.Sender, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP not configured, emails will only be logged")
		return email.LogSender{Logger: logger}, nil
	}
	sender, err := email.NewSMTPSender(&cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("failed to configure SMTP: %w", err)
	}
	return sender, nil
}

// newLimiter connects to Redis when configured.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, func(), error) {
	if !cfg.Redis.Enabled() {
		logger.Info("redis not configured, request rate limiting disabled")
		return ratelimit.Noop{}, func() {}, nil
	}

	client, err := ratelimit.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	closeFn := func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Error("failed to close redis client", "error", closeErr)
		}
	}
	return ratelimit.NewRedisLimiter(client, cfg.Redis.Prefix, cfg.Redis.RateWindow, cfg.Redis.RateMax), closeFn, nil
}

func startWithGracefulShutdown(ctx context.Context, app *App, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Channel for server errors
	errChan := make(chan error, 1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		logger.Info("Server running", "url", cfg.Server.BaseURL)
		if err := app.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	housekeepingDone := make(chan struct{})
	go func() {
		defer close(housekeepingDone)
		app.Housekeeper.Run(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case runErr = <-errChan:
		logger.Error("server error", "error", runErr)
		stop()
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.Echo.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}
	<-housekeepingDone

	logger.Info("server stopped")
	return runErr
}
