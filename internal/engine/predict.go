package engine

import (
	"context"
	"sort"
	"time"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/history"
)

// bottleneckShare is the share of total latency a block must reach to be
// reported as a bottleneck.
const bottleneckShare = 0.2

// Bottleneck is a block that dominates the estimated latency.
type Bottleneck struct {
	BlockID string         `json:"block_id"`
	Kind    flow.BlockKind `json:"kind"`
	Cost    time.Duration  `json:"cost"`
	Share   float64        `json:"share"`
	Reason  string         `json:"reason"`
}

// Historical compares the estimate with observed executions.
type Historical struct {
	ObservedLatency time.Duration       `json:"observed_latency"`
	Blocks          []history.BlockStat `json:"blocks"`
	// Deviation is (observed - estimated) / estimated, in percent.
	Deviation float64 `json:"deviation"`
}

// Prediction is a static performance estimate.
type Prediction struct {
	EstimatedLatency time.Duration    `json:"estimated_latency"`
	Groups           []analysis.Group `json:"groups"`
	Bottlenecks      []Bottleneck     `json:"bottlenecks"`
	Historical       *Historical      `json:"historical,omitempty"`
}

// PredictPerformance estimates latency from per-kind costs over the
// execution groups. When a history reader is configured, observed block
// latencies are compared; history failures only drop the comparison.
func (e *Engine) PredictPerformance(ctx context.Context, f *flow.Flow) *Prediction {
	if f == nil {
		return &Prediction{}
	}
	groups := analysis.ExecutionGroups(f)
	p := &Prediction{
		Groups:           groups,
		EstimatedLatency: analysis.EstimateLatency(f, groups, analysis.KindCost),
	}
	p.Bottlenecks = bottlenecks(f, groups, p.EstimatedLatency)
	p.Historical = e.historical(ctx, f, groups, p.EstimatedLatency)
	return p
}

func bottlenecks(f *flow.Flow, groups []analysis.Group, total time.Duration) []Bottleneck {
	if total <= 0 {
		return nil
	}
	var out []Bottleneck
	for _, g := range groups {
		var worst *flow.Block
		var cost time.Duration
		for _, id := range g.Blocks {
			b, err := f.Block(id)
			if err != nil {
				continue
			}
			if c := analysis.KindCost(b); worst == nil || c > cost {
				worst, cost = b, c
			}
		}
		if worst == nil {
			continue
		}
		share := float64(cost) / float64(total)
		if share < bottleneckShare {
			continue
		}
		out = append(out, Bottleneck{
			BlockID: worst.ID,
			Kind:    worst.Kind,
			Cost:    cost,
			Share:   share,
			Reason:  bottleneckReason(worst),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost > out[j].Cost })
	return out
}

func bottleneckReason(b *flow.Block) string {
	switch b.Kind {
	case flow.KindExternalCall, flow.KindDatabase:
		if b.Flag(flow.ParamCacheEnabled) {
			return "remote I/O (cached)"
		}
		return "remote I/O"
	case flow.KindAggregate:
		return "aggregation over the full input"
	case flow.KindLoop:
		return "per-item iteration"
	case flow.KindCustom:
		return "custom code"
	case flow.KindInput, flow.KindTransform, flow.KindFilter, flow.KindCondition, flow.KindOutput:
		return "dominant step"
	}
	return "dominant step"
}

func (e *Engine) historical(ctx context.Context, f *flow.Flow, groups []analysis.Group, estimated time.Duration) *Historical {
	if e.history == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.historyTimeout)
	defer cancel()

	stats, err := e.history.BlockStats(ctx, f.ID, e.now().Add(-e.historyWindow))
	if err != nil {
		e.logger.Debug("history lookup failed", "flow", f.ID, "error", err)
		return nil
	}
	if len(stats) == 0 {
		return nil
	}

	observed := make(map[string]time.Duration, len(stats))
	for _, s := range stats {
		observed[s.BlockID] = s.MeanLatency
	}
	cost := func(b *flow.Block) time.Duration {
		if d, ok := observed[b.ID]; ok {
			return d
		}
		return analysis.KindCost(b)
	}

	h := &Historical{
		ObservedLatency: analysis.EstimateLatency(f, groups, cost),
		Blocks:          stats,
	}
	if estimated > 0 {
		h.Deviation = float64(h.ObservedLatency-estimated) / float64(estimated) * 100
	}
	return h
}
