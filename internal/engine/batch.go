package engine

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// AnalyzeBatch inspects flows concurrently. Results keep the input order.
// The first error, including a nil flow, cancels the rest.
func (e *Engine) AnalyzeBatch(ctx context.Context, flows []*flow.Flow) ([]*Analysis, error) {
	out := make([]*Analysis, len(flows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, f := range flows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := e.Inspect(ctx, f)
			if err != nil {
				return fmt.Errorf("flow %d: %w", i, err)
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
