package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestValidate_Empty(t *testing.T) {
	cfg := &Config{}
	if warnings := cfg.Validate(); len(warnings) != 0 {
		t.Errorf("empty config should have no warnings, got %v", warnings)
	}
}

func TestValidate_MissingAPIKey(t *testing.T) {
	cfg := &Config{LLM: LLMConfig{Provider: "openai"}}
	if !hasWarning(cfg.Validate(), "api_key") {
		t.Error("expected warning about missing api_key")
	}
}

func TestValidate_KeylessProviders(t *testing.T) {
	for _, p := range []string{"none", "ollama"} {
		cfg := &Config{LLM: LLMConfig{Provider: p}}
		if hasWarning(cfg.Validate(), "api_key") {
			t.Errorf("%q provider should not warn about missing api_key", p)
		}
	}
}

func TestValidate_InvalidTemperature(t *testing.T) {
	tests := []struct {
		name string
		temp float64
		want bool
	}{
		{"zero", 0, false},
		{"normal", 0.7, false},
		{"max", 2.0, false},
		{"negative", -1, true},
		{"too_high", 3.0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LLM: LLMConfig{Temperature: tt.temp}}
			if got := hasWarning(cfg.Validate(), "temperature"); got != tt.want {
				t.Errorf("temperature=%.1f: hasWarn=%v, want=%v", tt.temp, got, tt.want)
			}
		})
	}
}

func TestValidate_EngineAndCache(t *testing.T) {
	cfg := &Config{
		Engine: EngineConfig{AcceptAbove: 120},
		Cache:  CacheConfig{Capacity: -1, AccuracyFloor: 1.5},
	}
	warnings := cfg.Validate()
	for _, want := range []string{"accept_above", "capacity", "accuracy_floor"} {
		if !hasWarning(warnings, want) {
			t.Errorf("expected warning about %s, got %v", want, warnings)
		}
	}
}

func TestValidate_HistoryDriver(t *testing.T) {
	tests := []struct {
		history HistoryConfig
		want    string
	}{
		{HistoryConfig{Driver: "influx"}, "url and bucket"},
		{HistoryConfig{Driver: "sqlite"}, "sqlite_path"},
		{HistoryConfig{Driver: "mongo"}, "unknown history driver"},
		{HistoryConfig{Driver: "sqlite", SQLitePath: "h.db"}, ""},
	}
	for _, tt := range tests {
		warnings := (&Config{History: tt.history}).Validate()
		if tt.want == "" {
			if len(warnings) != 0 {
				t.Errorf("%+v: unexpected warnings %v", tt.history, warnings)
			}
			continue
		}
		if !hasWarning(warnings, tt.want) {
			t.Errorf("%+v: expected %q warning, got %v", tt.history, tt.want, warnings)
		}
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Capacity != 1000 {
		t.Errorf("expected capacity 1000, got %d", cfg.Cache.Capacity)
	}
	if cfg.Cache.MaxAge != 24*time.Hour {
		t.Errorf("expected max_age 24h, got %v", cfg.Cache.MaxAge)
	}
	if cfg.Cache.AccuracyFloor != 0.7 {
		t.Errorf("expected accuracy_floor 0.7, got %v", cfg.Cache.AccuracyFloor)
	}
	if cfg.Engine.OracleTimeout != 10*time.Second {
		t.Errorf("expected oracle_timeout 10s, got %v", cfg.Engine.OracleTimeout)
	}
	if cfg.Engine.AcceptAbove != 60 {
		t.Errorf("expected accept_above 60, got %d", cfg.Engine.AcceptAbove)
	}
	if cfg.LLM.Provider != "none" {
		t.Errorf("expected provider none, got %q", cfg.LLM.Provider)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowlens.yaml")
	body := "cache:\n  capacity: 50\n  max_age: 1h\nlog:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLOWLENS_CACHE_CAPACITY", "75")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Cache.Capacity != 75 {
		t.Errorf("expected env override 75, got %d", cfg.Cache.Capacity)
	}
	if cfg.Cache.MaxAge != time.Hour {
		t.Errorf("expected max_age 1h from file, got %v", cfg.Cache.MaxAge)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
