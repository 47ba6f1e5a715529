package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp Response
	if strings.HasSuffix(path, "z") {
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec, resp
}

func TestHealth_AllHealthy(t *testing.T) {
	h := NewHealth()
	h.Require("temporal", func(context.Context) error { return nil })
	h.Optional("neo4j", func(context.Context) error { return nil })

	rec, resp := get(t, h.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", resp.Status)
	}
	if len(resp.Checks) != 2 || resp.Checks[0].Name != "neo4j" || resp.Checks[1].Name != "temporal" {
		t.Fatalf("expected sorted checks, got %+v", resp.Checks)
	}
}

func TestHealth_OptionalFailureDegrades(t *testing.T) {
	h := NewHealth()
	h.Require("temporal", func(context.Context) error { return nil })
	h.Optional("qdrant", func(context.Context) error { return errors.New("connection refused") })

	rec, resp := get(t, h.Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 while degraded, got %d", rec.Code)
	}
	if resp.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", resp.Status)
	}
	if resp.Checks[0].Message != "connection refused" {
		t.Fatalf("expected probe error in message, got %q", resp.Checks[0].Message)
	}
}

func TestHealth_RequiredFailureIsUnhealthy(t *testing.T) {
	h := NewHealth()
	h.Require("temporal", func(context.Context) error { return errors.New("down") })
	h.Optional("neo4j", func(context.Context) error { return errors.New("down") })

	rec, resp := get(t, h.Handler(), "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if resp.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy, got %s", resp.Status)
	}
}

func TestHealth_ProbeTimeout(t *testing.T) {
	h := NewHealth()
	h.timeout = 20 * time.Millisecond
	h.Require("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	resp := h.Run(context.Background())
	if resp.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy after timeout, got %s", resp.Status)
	}
}

func TestHealth_Readiness(t *testing.T) {
	h := NewHealth()
	handler := h.Handler()

	if rec, _ := get(t, handler, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", rec.Code)
	}
	h.SetReady(true)
	if rec, _ := get(t, handler, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", rec.Code)
	}
	if rec, _ := get(t, handler, "/livez"); rec.Code != http.StatusOK {
		t.Fatalf("expected live, got %d", rec.Code)
	}
}

func TestHealth_Metrics(t *testing.T) {
	rec, _ := get(t, NewHealth().Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("expected default Go collectors in metrics output")
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", NewHealth().Handler(), nil) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
