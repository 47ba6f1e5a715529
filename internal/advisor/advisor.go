package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/observability"
	"github.com/efebarandurmaz/flowlens/internal/patterns"
)

const (
	// DefaultOracleTimeout bounds a single oracle call.
	DefaultOracleTimeout = 10 * time.Second
	// DefaultAcceptAbove is the confidence an opportunity must exceed.
	DefaultAcceptAbove = 60
	// MaxImprovement caps the combined expected improvement.
	MaxImprovement = 90.0
)

// Oracle outcomes, also used as metric labels.
const (
	outcomeOK        = "ok"
	outcomeTimeout   = "timeout"
	outcomeError     = "error"
	outcomePanic     = "panic"
	outcomeMalformed = "malformed"
)

// Advisor produces Advice for a flow. It is safe for concurrent use.
type Advisor struct {
	oracle      Oracle
	oracleName  string
	timeout     time.Duration
	acceptAbove int
	logger      *slog.Logger
	validate    *validator.Validate
}

// Option configures an Advisor.
type Option func(*Advisor)

// WithOracle enables oracle consultation. A nil oracle disables it.
func WithOracle(o Oracle) Option {
	return func(a *Advisor) {
		a.oracle = o
		if named, ok := o.(interface{ Name() string }); ok {
			a.oracleName = named.Name()
		}
	}
}

// WithTimeout sets the oracle deadline.
func WithTimeout(d time.Duration) Option {
	return func(a *Advisor) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithAcceptAbove sets the acceptance threshold.
func WithAcceptAbove(c int) Option {
	return func(a *Advisor) { a.acceptAbove = clampPercent(c) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Advisor) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Advisor. Without WithOracle it runs heuristics only.
func New(opts ...Option) *Advisor {
	a := &Advisor{
		oracleName:  "oracle",
		timeout:     DefaultOracleTimeout,
		acceptAbove: DefaultAcceptAbove,
		logger:      slog.Default(),
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// HasOracle reports whether an oracle is configured.
func (a *Advisor) HasOracle() bool { return a.oracle != nil }

// AcceptAbove returns the acceptance threshold.
func (a *Advisor) AcceptAbove() int { return a.acceptAbove }

// Advise runs the heuristics, consults the oracle if configured, merges
// and ranks the candidates and selects the accepted subset. Oracle
// failures never surface; they set FallbackReason.
func (a *Advisor) Advise(ctx context.Context, f *flow.Flow, feat analysis.Features, report *patterns.Report) *Advice {
	return a.advise(ctx, f, feat, report, a.oracle != nil)
}

// AdviseLocal is Advise without the oracle.
func (a *Advisor) AdviseLocal(f *flow.Flow, feat analysis.Features, report *patterns.Report) *Advice {
	return a.advise(context.Background(), f, feat, report, false)
}

func (a *Advisor) advise(ctx context.Context, f *flow.Flow, feat analysis.Features, report *patterns.Report, useOracle bool) *Advice {
	advice := &Advice{}
	candidates := Heuristics(f, feat, report)

	if useOracle {
		sug, reason := a.consult(ctx, NewRequest(f, feat, report))
		if sug != nil {
			advice.OracleUsed = true
			advice.OracleConfidence = clampPercent(sug.Confidence)
			candidates = append(candidates, a.sanitize(f, sug.Optimizations)...)
		} else {
			advice.FallbackReason = reason
			a.logger.Warn("oracle fallback", "flow", f.ID, "reason", reason)
		}
	}

	advice.Opportunities = Rank(Merge(candidates))
	advice.Accepted = Accept(advice.Opportunities, a.acceptAbove)

	gains := make([]int, len(advice.Accepted))
	confs := make([]int, len(advice.Accepted))
	for i, o := range advice.Accepted {
		gains[i], confs[i] = o.ExpectedGain, o.Confidence
	}
	advice.ExpectedImprovement = DiminishingReturns(gains)
	advice.Confidence = CompositeConfidence(confs, advice.OracleUsed, advice.OracleConfidence)
	return advice
}

type oracleResult struct {
	sug *Suggestion
	err error
}

// consult calls the oracle under a deadline. The call runs in its own
// goroutine so a provider that ignores ctx cannot block the caller; the
// buffered channel lets it finish and exit after we stop waiting.
func (a *Advisor) consult(ctx context.Context, req Request) (*Suggestion, string) {
	ctx, span := observability.StartOracleSpan(ctx, a.oracleName)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	done := make(chan oracleResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- oracleResult{err: &panicError{value: r}}
			}
		}()
		sug, err := a.oracle.Suggest(ctx, req)
		done <- oracleResult{sug: sug, err: err}
	}()

	var res oracleResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = oracleResult{err: ctx.Err()}
	}

	outcome, reason := outcomeOK, ""
	var pe *panicError
	switch {
	case res.err == nil && res.sug == nil:
		outcome, reason = outcomeMalformed, "oracle returned no suggestion"
	case res.err == nil:
	case errors.Is(res.err, context.DeadlineExceeded):
		outcome, reason = outcomeTimeout, fmt.Sprintf("oracle timed out after %s", a.timeout)
	case errors.As(res.err, &pe):
		outcome, reason = outcomePanic, res.err.Error()
	case errors.Is(res.err, ErrMalformed):
		outcome, reason = outcomeMalformed, res.err.Error()
	default:
		outcome, reason = outcomeError, res.err.Error()
	}
	observability.OracleOutcome(outcome)
	if outcome != outcomeOK {
		observability.RecordError(span, errors.New(reason))
		return nil, reason
	}
	return res.sug, ""
}

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("oracle panicked: %v", e.value) }

// sanitize clamps numeric fields, drops unknown types and difficulties,
// removes targets that are not blocks of f, and drops items left without
// targets.
func (a *Advisor) sanitize(f *flow.Flow, items []Opportunity) []Opportunity {
	var out []Opportunity
	for _, o := range items {
		if !o.Type.Valid() || !o.Difficulty.Valid() {
			a.logger.Debug("dropping oracle item", "type", o.Type, "difficulty", o.Difficulty)
			continue
		}
		seen := make(map[string]bool, len(o.Targets))
		var targets []string
		for _, id := range o.Targets {
			if f.HasBlock(id) && !seen[id] {
				seen[id] = true
				targets = append(targets, id)
			}
		}
		o.Targets = targets
		o.ExpectedGain = clampPercent(o.ExpectedGain)
		o.Confidence = clampPercent(o.Confidence)
		o.Source = SourceOracle
		if err := a.validate.Struct(o); err != nil {
			a.logger.Debug("dropping oracle item", "type", o.Type, "error", err)
			continue
		}
		out = append(out, o)
	}
	return out
}

// Merge deduplicates by (type, sorted targets), keeping the higher
// confidence. Order of first appearance is preserved.
func Merge(items []Opportunity) []Opportunity {
	index := make(map[string]int, len(items))
	var out []Opportunity
	for _, o := range items {
		k := o.Key()
		if i, ok := index[k]; ok {
			if o.Confidence > out[i].Confidence {
				out[i] = o
			}
			continue
		}
		index[k] = len(out)
		out = append(out, o)
	}
	return out
}

// Rank sorts by ExpectedGain x Confidence, descending. Ties keep input
// order.
func Rank(items []Opportunity) []Opportunity {
	out := append([]Opportunity{}, items...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpectedGain*out[i].Confidence > out[j].ExpectedGain*out[j].Confidence
	})
	return out
}

// Accept keeps opportunities whose confidence exceeds threshold.
func Accept(ranked []Opportunity, threshold int) []Opportunity {
	var out []Opportunity
	for _, o := range ranked {
		if o.Confidence > threshold {
			out = append(out, o)
		}
	}
	return out
}

// DiminishingReturns combines gains so each one applies only to what the
// previous ones left: sorted descending, each gain takes its share of the
// remaining pool of 100. The total is capped at MaxImprovement.
func DiminishingReturns(gains []int) float64 {
	sorted := append([]int{}, gains...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	pool, total := 100.0, 0.0
	for _, g := range sorted {
		take := float64(clampPercent(g)) / 100 * pool
		pool -= take
		total += take
	}
	if total > MaxImprovement {
		return MaxImprovement
	}
	return total
}

// CompositeConfidence averages confidences and scales by the oracle's own
// confidence when the oracle contributed.
func CompositeConfidence(confs []int, oracleUsed bool, oracleConfidence int) float64 {
	if len(confs) == 0 {
		return 0
	}
	sum := 0
	for _, c := range confs {
		sum += clampPercent(c)
	}
	avg := float64(sum) / float64(len(confs))
	if oracleUsed {
		avg *= float64(clampPercent(oracleConfidence)) / 100
	}
	return avg
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
