// Package server drains in-flight HTTP requests and releases resources on
// shutdown.
package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Drainer tracks in-flight requests and runs registered closers once they
// have finished.
type Drainer struct {
	drainTimeout time.Duration

	stopping atomic.Bool
	inFlight atomic.Int64
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	closers []io.Closer
}

// NewDrainer creates a Drainer. drainTimeout <= 0 uses 15 seconds.
func NewDrainer(drainTimeout time.Duration) *Drainer {
	if drainTimeout <= 0 {
		drainTimeout = 15 * time.Second
	}
	return &Drainer{drainTimeout: drainTimeout, done: make(chan struct{})}
}

// RegisterCloser adds c to the shutdown sequence. Closers run in reverse
// registration order.
func (d *Drainer) RegisterCloser(c io.Closer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closers = append(d.closers, c)
}

// Enter records a new request. It returns false once shutdown has begun.
func (d *Drainer) Enter() bool {
	if d.stopping.Load() {
		return false
	}
	d.inFlight.Add(1)
	return true
}

// Leave records a finished request.
func (d *Drainer) Leave() {
	d.inFlight.Add(-1)
}

// InFlight returns the number of requests being served.
func (d *Drainer) InFlight() int64 {
	return d.inFlight.Load()
}

// Stopping reports whether shutdown has begun.
func (d *Drainer) Stopping() bool {
	return d.stopping.Load()
}

// Done is closed when shutdown begins.
func (d *Drainer) Done() <-chan struct{} {
	return d.done
}

// Shutdown stops admitting requests, waits for in-flight ones and closes
// every registered closer. Only the first call does any work.
func (d *Drainer) Shutdown(ctx context.Context, reason string) error {
	var err error
	d.once.Do(func() {
		log.Printf("server: shutting down (%s)", reason)
		d.stopping.Store(true)
		close(d.done)

		if derr := d.drain(ctx); derr != nil {
			err = derr
		}

		d.mu.Lock()
		closers := d.closers
		d.mu.Unlock()
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close failed: %w", cerr)
			}
		}
	})
	return err
}

func (d *Drainer) drain(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if d.inFlight.Load() <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for %d in-flight requests", d.inFlight.Load())
		case <-ticker.C:
		}
	}
}

// WaitForSignal blocks until SIGINT or SIGTERM arrives, ctx is cancelled
// or shutdown starts elsewhere, then shuts down.
func (d *Drainer) WaitForSignal(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		return d.Shutdown(context.Background(), fmt.Sprintf("received signal: %v", sig))
	case <-ctx.Done():
		return d.Shutdown(context.Background(), "context cancelled")
	case <-d.done:
		return nil
	}
}

// Middleware rejects requests with 503 once shutdown has begun and tracks
// the rest.
func (d *Drainer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !d.Enter() {
			w.Header().Set("Connection", "close")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"service is shutting down"}`))
			return
		}
		defer d.Leave()
		next.ServeHTTP(w, r)
	})
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}
