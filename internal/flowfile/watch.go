package flowfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 100 * time.Millisecond

// Event is one (re)load of a flow file. Err is set when the file could not
// be loaded; Flow is nil then.
type Event struct {
	Path   string
	Flow   *flow.Flow
	Issues []flow.Issue
	Err    error
}

// WatchOption configures Watch.
type WatchOption func(*watchConfig)

type watchConfig struct {
	debounce time.Duration
	initial  bool
	logger   *slog.Logger
}

// WithDebounce sets the quiet period before a changed file is reloaded.
func WithDebounce(d time.Duration) WatchOption {
	return func(c *watchConfig) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithInitialScan emits an event for every flow file already in the
// directory before watching.
func WithInitialScan(on bool) WatchOption {
	return func(c *watchConfig) { c.initial = on }
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *slog.Logger) WatchOption {
	return func(c *watchConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Watch loads flow files in dir as they are created or written. Bursts of
// writes to one file are collapsed into a single event. The channel is
// closed when ctx is done.
func Watch(ctx context.Context, dir string, opts ...WatchOption) (<-chan Event, error) {
	cfg := watchConfig{debounce: DefaultDebounce, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	var initial []string
	if cfg.initial {
		entries, err := os.ReadDir(dir)
		if err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() && Supported(e.Name()) {
				initial = append(initial, filepath.Join(dir, e.Name()))
			}
		}
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer w.Close()

		emit := func(path string) bool {
			f, issues, err := Load(path)
			select {
			case out <- Event{Path: path, Flow: f, Issues: issues, Err: err}:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		pending := make(map[string]time.Time)
		ticker := time.NewTicker(cfg.debounce / 2)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !Supported(ev.Name) || !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				pending[ev.Name] = time.Now()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				cfg.logger.Warn("flow watcher error", "dir", dir, "error", err)
			case now := <-ticker.C:
				var ready []string
				for p, at := range pending {
					if now.Sub(at) >= cfg.debounce {
						ready = append(ready, p)
					}
				}
				sort.Strings(ready)
				for _, p := range ready {
					delete(pending, p)
					if !emit(p) {
						return
					}
				}
			}
		}
	}()
	return out, nil
}
