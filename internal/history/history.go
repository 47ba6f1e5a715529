// Package history reads observed block execution telemetry. Lookups are
// best effort: callers treat an error as "no history".
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/efebarandurmaz/flowlens/internal/config"
	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// Execution is one observed block run.
type Execution struct {
	FlowID    string
	BlockID   string
	Kind      flow.BlockKind
	StartedAt time.Time
	Duration  time.Duration
	Success   bool
}

// BlockStat aggregates the executions of one block.
type BlockStat struct {
	BlockID     string        `json:"block_id"`
	Runs        int           `json:"runs"`
	Failures    int           `json:"failures"`
	MeanLatency time.Duration `json:"mean_latency"`
	MaxLatency  time.Duration `json:"max_latency"`
}

// Reader returns per-block statistics for a flow since a point in time.
type Reader interface {
	BlockStats(ctx context.Context, flowID string, since time.Time) ([]BlockStat, error)
}

// ReadCloser is a Reader that holds a connection.
type ReadCloser interface {
	Reader
	Close() error
}

// Open builds the reader selected by cfg.Driver. It returns nil, nil for
// "none" or an empty driver.
func Open(ctx context.Context, cfg config.HistoryConfig) (ReadCloser, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "influx":
		return NewInfluxReader(cfg.URL, cfg.Token, cfg.Org, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}
