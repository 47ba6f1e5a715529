// Package server exposes the worker's operational endpoints: health
// probes and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status is the health of a dependency or of the whole worker.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is the result of probing one dependency.
type Check struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Required bool   `json:"required"`
}

// Response is the body of every probe endpoint.
type Response struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Checks    []Check   `json:"checks,omitempty"`
}

// Probe tests one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

type probe struct {
	fn       Probe
	required bool
}

// Health serves /healthz, /readyz, /livez and /metrics.
type Health struct {
	mu      sync.RWMutex
	probes  map[string]probe
	ready   atomic.Bool
	timeout time.Duration
	now     func() time.Time
}

// NewHealth returns a Health that is live but not yet ready.
func NewHealth() *Health {
	return &Health{probes: make(map[string]probe), timeout: 5 * time.Second, now: time.Now}
}

// Require registers a probe whose failure makes the worker unhealthy.
func (h *Health) Require(name string, fn Probe) { h.add(name, fn, true) }

// Optional registers a probe whose failure only degrades the worker.
func (h *Health) Optional(name string, fn Probe) { h.add(name, fn, false) }

func (h *Health) add(name string, fn Probe, required bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = probe{fn: fn, required: required}
}

// SetReady flips the readiness probe.
func (h *Health) SetReady(ready bool) { h.ready.Store(ready) }

// Run probes every dependency concurrently and folds the results.
func (h *Health) Run(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	h.mu.RLock()
	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	probes := make(map[string]probe, len(h.probes))
	for k, v := range h.probes {
		probes[k] = v
	}
	h.mu.RUnlock()
	sort.Strings(names)

	checks := make([]Check, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string, p probe) {
			defer wg.Done()
			c := Check{Name: name, Status: StatusHealthy, Required: p.required}
			if err := p.fn(ctx); err != nil {
				c.Message = err.Error()
				c.Status = StatusDegraded
				if p.required {
					c.Status = StatusUnhealthy
				}
			}
			checks[i] = c
		}(i, name, probes[name])
	}
	wg.Wait()

	resp := Response{Status: StatusHealthy, Timestamp: h.now().UTC(), Checks: checks}
	for _, c := range checks {
		switch {
		case c.Status == StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case c.Status == StatusDegraded && resp.Status == StatusHealthy:
			resp.Status = StatusDegraded
		}
	}
	return resp
}

// Handler returns the endpoint mux.
func (h *Health) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/readyz", h.handleReady)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Response{Status: StatusHealthy, Timestamp: h.now().UTC()})
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (h *Health) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := h.Run(r.Context())
	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (h *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	resp := Response{Status: StatusHealthy, Timestamp: h.now().UTC()}
	code := http.StatusOK
	if !h.ready.Load() {
		resp.Status, code = StatusUnhealthy, http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", "error", err)
		return err
	}
	return nil
}
