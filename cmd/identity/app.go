package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/techx/identity/internal/db"
	"github.com/techx/identity/internal/handlers"
	"github.com/techx/identity/internal/logger"
	"github.com/techx/identity/internal/notifier"
	"github.com/techx/identity/internal/repository"
	"github.com/techx/identity/internal/repository/postgres"
	"github.com/techx/identity/internal/service/auth"
	"github.com/techx/identity/internal/service/auth/tokenmanager"
	"github.com/techx/identity/internal/service/googleauth"
	"github.com/techx/identity/internal/service/otp"
)

const tokenSweepInterval = time.Hour

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	storage repository.Storage
	logger  logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	log, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		Issuer:     c.JWTIssuer,
		Audience:   c.JWTAudience,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	googleService, err := googleauth.NewService(
		googleauth.Config{ClientID: c.GoogleClientID},
		tokenManager,
		storage,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating google auth service. Err: %w", err)
	}

	var sender notifier.Sender = notifier.LogSender{Logger: log}
	if c.AMQPURL != "" {
		sender = notifier.AMQPSender{URL: c.AMQPURL, Logger: log}
	}

	otpService, err := otp.NewService(otp.Config{}, storage, sender, log)
	if err != nil {
		return nil, fmt.Errorf("error while creating otp service. Err: %w", err)
	}

	mux := handlers.NewRouter(
		authService,
		googleService,
		otpService,
		tokenManager,
		log,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		storage:    storage,
		logger:     log,
	}, nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	// Drop stale refresh token rows while the server runs
	go s.sweepExpiredTokens(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}

func (s *ServerApp) sweepExpiredTokens(ctx context.Context) {
	ticker := time.NewTicker(tokenSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.storage.Refresh().DeleteExpired(ctx, time.Now())
			if err != nil {
				s.logger.Warn("refresh token sweep failed", "error", err)
				continue
			}
			if deleted > 0 {
				s.logger.Info("swept expired refresh tokens", "deleted", deleted)
			}
		}
	}
}
