// Package app wires configuration, storage and the HTTP API into a
// runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	httpapi "github.com/claimvault/claimvault/internal/api/http"
	"github.com/claimvault/claimvault/internal/config"
	"github.com/claimvault/claimvault/internal/hybrid"
	"github.com/claimvault/claimvault/internal/remote"
	"github.com/claimvault/claimvault/internal/server"
)

// App manages the service lifecycle.
type App struct {
	cfg       *config.Config
	connector *remote.Connector

	store    *hybrid.Coordinator
	drainer  *server.Drainer
	server   *http.Server
	listener net.Listener

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// Option customizes an App.
type Option func(*App)

// WithConnector replaces the remote Connector.
func WithConnector(c *remote.Connector) Option {
	return func(a *App) { a.connector = c }
}

// New resolves and validates cfg and creates its directories.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{cfg: cfg, connector: remote.DefaultConnector()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Start opens the stores and starts serving HTTP.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("app is already running")
	}

	store, err := hybrid.OpenWith(ctx, a.cfg, a.connector)
	if err != nil {
		return fmt.Errorf("failed to open claim store: %w", err)
	}
	a.store = store
	log.Printf("Claim store opened: mode=%s", store.Status().Mode)

	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.listener = ln

	a.drainer = server.NewDrainer(a.cfg.HTTP.WriteTimeout)
	api := httpapi.NewHandler(store, a.cfg.App.MaxContentLength)
	a.server = &http.Server{
		Handler:      a.drainer.Middleware(api.Routes()),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.drainer.RegisterCloser(server.CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(ctx)
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP server listening on %s", ln.Addr())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] HTTP server error: %v", err)
		}
	}()

	a.running = true
	return nil
}

// Addr returns the address the HTTP server is bound to, or "" before
// Start.
func (a *App) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Store returns the coordinator opened by Start.
func (a *App) Store() *hybrid.Coordinator {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store
}

// Stop drains in-flight requests and shuts the server down.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown...")
	err := a.drainer.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("[WARN] Shutdown timeout, HTTP server may not have finished")
	}

	log.Printf("claimvault stopped")
	return err
}

// WaitForShutdown blocks until a termination signal arrives or ctx is
// cancelled, then stops the App.
func (a *App) WaitForShutdown(ctx context.Context) error {
	if err := a.drainer.WaitForSignal(ctx); err != nil {
		log.Printf("[WARN] drain: %v", err)
	}
	return a.Stop(context.Background())
}
