package modelcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// complexityBucket groups flows whose complexity differs by small amounts.
const complexityBucket = 5

// signatureInput is the canonical form hashed into a signature. Field
// order is fixed and encoding/json sorts map keys.
type signatureInput struct {
	Nodes       int                    `json:"nodes"`
	Connections int                    `json:"connections"`
	Kinds       map[flow.BlockKind]int `json:"kinds"`
	Complexity  int                    `json:"complexity"`
	Cyclomatic  int                    `json:"cyclomatic"`
}

// Signature returns the hex sha256 of the bucketed features. Flows with the
// same shape share a signature regardless of block ids or parameters.
func Signature(feat analysis.Features) string {
	kinds := make(map[flow.BlockKind]int, len(feat.BlockTypeDistribution))
	for k, n := range feat.BlockTypeDistribution {
		if n > 0 {
			kinds[k] = n
		}
	}
	in := signatureInput{
		Nodes:       feat.NodeCount,
		Connections: feat.ConnectionCount,
		Kinds:       kinds,
		Complexity:  feat.Complexity / complexityBucket * complexityBucket,
		Cyclomatic:  feat.CyclomaticComplexity,
	}
	// Marshal cannot fail for this type.
	b, _ := json.Marshal(in)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type fingerprintBlock struct {
	ID     string         `json:"id"`
	Kind   flow.BlockKind `json:"kind"`
	Params map[string]any `json:"params,omitempty"`
}

type fingerprintInput struct {
	Blocks []fingerprintBlock `json:"blocks"`
	Edges  []string           `json:"edges"`
}

// Fingerprint returns the hex sha256 of f's block ids, kinds, parameter
// values and edges. Unlike Signature it changes whenever a cached rewrite
// could stop being valid for f.
func Fingerprint(f *flow.Flow) string {
	in := fingerprintInput{
		Blocks: make([]fingerprintBlock, 0, len(f.Blocks)),
		Edges:  make([]string, 0, len(f.Connections)),
	}
	for _, b := range f.Blocks {
		fb := fingerprintBlock{ID: b.ID, Kind: b.Kind}
		if len(b.Parameters) > 0 {
			fb.Params = make(map[string]any, len(b.Parameters))
			for _, p := range b.Parameters {
				fb.Params[p.Name] = p.Value
			}
		}
		in.Blocks = append(in.Blocks, fb)
	}
	sort.Slice(in.Blocks, func(i, j int) bool { return in.Blocks[i].ID < in.Blocks[j].ID })
	for _, c := range f.Connections {
		in.Edges = append(in.Edges, c.Source.BlockID+":"+c.Source.Port+"->"+c.Target.BlockID+":"+c.Target.Port)
	}
	sort.Strings(in.Edges)

	b, err := json.Marshal(in)
	if err != nil {
		// Unencodable parameter values never match a cached fingerprint.
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
