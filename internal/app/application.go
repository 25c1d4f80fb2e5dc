package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"codorachat/internal/api"
	"codorachat/internal/auth"
	"codorachat/internal/config"
	"codorachat/internal/database"
	"codorachat/internal/hub"
	"codorachat/internal/websocket"
	pkgdatabase "codorachat/pkg/database"
)

// Application owns every component of the chat server
type Application struct {
	config      *config.Config
	dbManager   *database.Manager
	authService *auth.Service
	registry    *websocket.Registry
	chatHub     *hub.Hub
	wsHandler   *websocket.Handler
	apiServer   *api.Server
	httpServer  *http.Server
	listener    net.Listener
}

// NewApplication builds the component graph in dependency order:
// Database → Auth → Registry → Hub (with Typing Tracker) → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: credential store
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: cfg.Database.Timeout,
		ConnMaxIdleTime: cfg.Database.Timeout / 3,
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." && cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 1.5: schema
	if err := pkgdatabase.NewMigrationManager(dbManager.GetDB()).ApplyMigrations(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := pkgdatabase.NewSchemaValidator(dbManager.GetDB()).Validate(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("database schema validation failed: %w", err)
	}
	log.Println("Database migrations applied and schema validated")

	// STEP 2: auth collaborator
	authService := auth.NewService(
		dbManager,
		auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		auth.NewTokenManager(auth.TokenConfig{
			Secret: cfg.Auth.Secret,
			TTL:    cfg.Auth.TokenTTL,
			Issuer: cfg.Auth.Issuer,
		}),
	)

	// STEP 3: connection registry
	registry := websocket.NewRegistry()

	// STEP 4: broadcast hub, which owns the typing tracker
	chatHub, err := hub.NewHub(registry, hub.Config{
		TypingTimeout:     cfg.Typing.Timeout,
		MessagesPerMinute: cfg.RateLimit.MessagesPerMinute,
	})
	if err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to initialize hub: %w", err)
	}

	// STEP 5: session boundary
	wsHandler := websocket.NewHandler(registry, authService, chatHub, websocket.HandlerConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		ReadTimeout:    cfg.WebSocket.ReadTimeout,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		BufferSize:     cfg.WebSocket.BufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	})

	// STEP 6: HTTP boundary
	apiServer := api.NewServer(authService, dbManager, chatHub)

	// STEP 7: routes
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)
	mux.Handle("/", apiServer)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		dbManager:   dbManager,
		authService: authService,
		registry:    registry,
		chatHub:     chatHub,
		wsHandler:   wsHandler,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start runs the hub, then begins serving HTTP. The listener is bound before
// Start returns, so a port conflict is reported here.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting chat server on %s", app.httpServer.Addr)

	// STEP 1: broadcast loop
	if err := app.chatHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	// STEP 2: listener
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.chatHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Chat server started: addr=%s", listener.Addr())
	return nil
}

// Stop shuts down in reverse dependency order: HTTP → connections → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Println("Shutting down chat server")

	var errs []error

	// STEP 1: stop accepting requests
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	// STEP 2: hijacked WebSocket connections are not covered by Shutdown
	if n := app.registry.CloseAll(); n > 0 {
		log.Printf("Closed %d WebSocket connections", n)
	}

	// STEP 3: broadcast loop and typing timers
	if err := app.chatHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("hub shutdown: %w", err))
	}

	// STEP 4: credential store
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	log.Println("Chat server shutdown complete")
	return errors.Join(errs...)
}

// Handler returns the root HTTP handler
func (app *Application) Handler() http.Handler {
	return app.httpServer.Handler
}

// GetAddr returns the bound address once started, otherwise the configured one
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}
