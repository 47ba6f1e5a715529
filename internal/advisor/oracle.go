package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
	"github.com/efebarandurmaz/flowlens/internal/llm"
	"github.com/efebarandurmaz/flowlens/internal/patterns"
)

// ErrMalformed reports an oracle reply that could not be parsed.
var ErrMalformed = errors.New("malformed oracle reply")

// Oracle is an external source of optimization opinions. Replies are
// untrusted; the advisor clamps and filters them.
type Oracle interface {
	Suggest(ctx context.Context, req Request) (*Suggestion, error)
}

// RequestBlock is the per-block summary sent to the oracle.
type RequestBlock struct {
	ID   string         `json:"id"`
	Kind flow.BlockKind `json:"kind"`
}

// Request carries the compact flow summary the oracle reasons over.
type Request struct {
	FlowID   string                `json:"flow_id"`
	Features analysis.Features     `json:"features"`
	Patterns map[patterns.Type]int `json:"patterns"`
	Blocks   []RequestBlock        `json:"blocks"`
}

// NewRequest summarises f for the oracle.
func NewRequest(f *flow.Flow, feat analysis.Features, report *patterns.Report) Request {
	req := Request{FlowID: f.ID, Features: feat, Blocks: make([]RequestBlock, 0, len(f.Blocks))}
	if report != nil {
		req.Patterns = report.Summary()
	}
	for _, b := range f.Blocks {
		req.Blocks = append(req.Blocks, RequestBlock{ID: b.ID, Kind: b.Kind})
	}
	return req
}

// Suggestion is an oracle reply before sanitization.
type Suggestion struct {
	Confidence    int           `json:"confidence"`
	Optimizations []Opportunity `json:"optimizations"`
}

const oracleSystemPrompt = `You review data-processing flow graphs and suggest optimizations.
Reply with a single JSON object and nothing else:
{"confidence": <0-100>, "optimizations": [{"type": "parallelization|caching|elimination|merging|reordering",
"targets": ["<block id>", ...], "expected_gain": <0-100>, "difficulty": "easy|medium|hard",
"confidence": <0-100>, "description": "<one sentence>"}]}
Only reference block ids that appear in the input.`

// LLMOracle asks a completion provider for suggestions.
type LLMOracle struct {
	provider llm.Provider
	opts     *llm.RequestOptions
}

// NewLLMOracle wraps p. Replies are requested in JSON mode.
func NewLLMOracle(p llm.Provider) *LLMOracle {
	temp := float32(0.2)
	return &LLMOracle{provider: p, opts: &llm.RequestOptions{Temperature: &temp, JSONMode: true}}
}

// Name returns the underlying provider name.
func (o *LLMOracle) Name() string { return o.provider.Name() }

// Suggest sends req and parses the reply.
func (o *LLMOracle) Suggest(ctx context.Context, req Request) (*Suggestion, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode oracle request: %w", err)
	}
	resp, err := o.provider.Complete(ctx, &llm.Prompt{
		SystemPrompt: oracleSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: string(payload)}},
	}, o.opts)
	if err != nil {
		return nil, err
	}
	return ParseSuggestion(resp.Content)
}

// rawSuggestion tolerates fractional numbers in model output.
type rawSuggestion struct {
	Confidence    float64 `json:"confidence"`
	Optimizations []struct {
		Type         string   `json:"type"`
		Targets      []string `json:"targets"`
		ExpectedGain float64  `json:"expected_gain"`
		Difficulty   string   `json:"difficulty"`
		Confidence   float64  `json:"confidence"`
		Description  string   `json:"description"`
	} `json:"optimizations"`
}

// ParseSuggestion extracts the JSON object from model output, ignoring
// fences, thinking tags and surrounding prose.
func ParseSuggestion(content string) (*Suggestion, error) {
	body := llm.ExtractJSONObject(content)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON object", ErrMalformed)
	}
	var raw rawSuggestion
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	s := &Suggestion{Confidence: roundPercent(raw.Confidence)}
	for _, r := range raw.Optimizations {
		s.Optimizations = append(s.Optimizations, Opportunity{
			Type:         OptimizationType(r.Type),
			Targets:      r.Targets,
			ExpectedGain: roundPercent(r.ExpectedGain),
			Difficulty:   Difficulty(r.Difficulty),
			Confidence:   roundPercent(r.Confidence),
			Description:  r.Description,
		})
	}
	return s, nil
}

// roundPercent rounds and saturates so huge model values cannot overflow
// int conversion.
func roundPercent(v float64) int {
	switch {
	case v != v: // NaN
		return 0
	case v <= -1000:
		return -1000
	case v >= 1000:
		return 1000
	}
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
