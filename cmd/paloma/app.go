package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/paloma-health/paloma-server/internal/db"
	"github.com/paloma-health/paloma-server/internal/handlers"
	"github.com/paloma-health/paloma-server/internal/handlers/middleware"
	"github.com/paloma-health/paloma-server/internal/logger"
	"github.com/paloma-health/paloma-server/internal/models"
	"github.com/paloma-health/paloma-server/internal/repository/postgres"
	"github.com/paloma-health/paloma-server/internal/service/auth"
	"github.com/paloma-health/paloma-server/internal/service/auth/tokenmanager"
	"github.com/paloma-health/paloma-server/internal/service/role"
	"github.com/paloma-health/paloma-server/internal/service/user"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
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
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
	}, storage.Refresh())
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	authService, err := auth.NewService(auth.Config{}, tokenManager, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	roleService, err := role.NewService(storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating role service. Err: %w", err)
	}
	userService, err := user.NewService(auth.DefaultHasher, storage)
	if err != nil {
		return nil, fmt.Errorf("error while creating user service. Err: %w", err)
	}

	// Initialize handlers and assemble the router
	mux := handlers.NewRouter(
		handlers.NewAuth(authService),
		handlers.NewRole(roleService),
		handlers.NewProfile(userService),
		middleware.Auth(authService),
		middleware.RequireRole(roleService, models.RoleUser),
		middleware.Logger(log),
		middleware.CORS(c.CORSAllowedOrigins),
		middleware.NewRateLimiter(c.RateLimitRPM, c.AuthRateLimitRPM).Handler,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
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

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			slog.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		slog.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close connections gracefully
	slog.Info("Starting server")
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
