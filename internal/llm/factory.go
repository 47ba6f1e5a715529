package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig holds everything needed to build a completion provider.
type ProviderConfig struct {
	Provider string // "openai", "groq", "ollama", ... or "none"
	APIKey   string
	Model    string
	BaseURL  string // overrides the preset endpoint

	Timeout    time.Duration // per-attempt timeout
	MaxRetries int
	RetryDelay time.Duration

	RequestsPerMinute int // 0 = unlimited
	BurstSize         int
}

// DefaultProviderConfig returns a config with the default retry policy.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
	}
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory maps provider names to constructors.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// NewFactory returns an empty factory.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a constructor under name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. It returns nil with no error when
// the provider is empty or "none", so the engine runs heuristics only.
// Providers are wrapped with rate limiting when RequestsPerMinute is set
// and with retries when a timeout or retry count is set.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q (registered: %v)", cfg.Provider, f.Names())
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = KnownProviders[cfg.Provider]
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider, err)
	}

	if cfg.RequestsPerMinute > 0 {
		provider = WithRateLimit(provider, &RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			BurstSize:         cfg.BurstSize,
		})
	}
	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		provider = WrapWithRetry(provider, cfg)
	}
	return provider, nil
}

// Names returns the registered provider names, sorted.
func (f *ProviderFactory) Names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders maps OpenAI-compatible presets to their default base URL.
var KnownProviders = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"groq":        "https://api.groq.com/openai/v1",
	"huggingface": "https://api-inference.huggingface.co/v1",
	"ollama":      "http://localhost:11434/v1",
	"together":    "https://api.together.xyz/v1",
	"deepseek":    "https://api.deepseek.com/v1",
}
