package vector

import (
	"math"

	"github.com/efebarandurmaz/flowlens/internal/analysis"
	"github.com/efebarandurmaz/flowlens/internal/flow"
)

// Dimensions is the length of a feature vector: nine scalar features
// followed by the kind distribution.
var Dimensions = 9 + len(flow.Kinds())

// FeatureVector embeds features into a fixed-length vector. Counts are
// log-scaled so large flows do not dominate cosine similarity, and the
// kind distribution is expressed as fractions of the node count.
func FeatureVector(feat analysis.Features) []float32 {
	v := make([]float32, 0, Dimensions)
	for _, x := range []float64{
		float64(feat.NodeCount),
		float64(feat.ConnectionCount),
		float64(feat.Complexity),
		float64(feat.CyclomaticComplexity),
		float64(feat.MaxDepth),
		feat.BranchingFactor,
		feat.AverageBlockParameters,
		float64(feat.ParallelizableBlocks),
		float64(feat.ConnectedComponents),
	} {
		v = append(v, float32(math.Log1p(math.Max(0, x))))
	}
	for _, k := range flow.Kinds() {
		var frac float64
		if feat.NodeCount > 0 {
			frac = float64(feat.BlockTypeDistribution[k]) / float64(feat.NodeCount)
		}
		v = append(v, float32(frac))
	}
	return v
}

// Cosine returns the cosine similarity of a and b, or 0 when either is
// zero or the lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
