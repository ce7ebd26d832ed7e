package search

import (
	"math"
	"regexp"
	"strings"
)

// FTSScore maps a raw bm25 rank (negative, more negative = better) into
// (0, 1] with exponential decay. The decay constant keeps good separation
// among the top handful of hits.
func FTSScore(rank float64) float64 {
	return math.Exp(-0.3 * math.Abs(rank))
}

// VectorSimilarity converts a distance in [0, 2] to a similarity in [0, 1]:
// 0 distance is 1.0, orthogonal is 0.5, opposite is 0.0.
func VectorSimilarity(distance float64) float64 {
	return math.Max(0, 1-distance/2)
}

// Weights is one fusion weighting with its observable mode label.
type Weights struct {
	FTS    float64
	Vector float64
	Mode   string
}

var booleanRe = regexp.MustCompile(`\b(AND|OR|NOT)\b`)

// QueryWeights picks fusion weights from the query's shape. Short queries
// lean on the keyword index, quoted or boolean queries even more so, and
// long natural-language queries lean on the vector side. The label is
// surfaced in the response mode so the choice is observable.
func QueryWeights(query string) Weights {
	tokens := len(strings.Fields(query))
	quoted := strings.Contains(query, `"`)
	switch {
	case tokens <= 2 && !quoted:
		return Weights{FTS: 0.7, Vector: 0.3, Mode: "hybrid-short"}
	case quoted || booleanRe.MatchString(query):
		return Weights{FTS: 0.75, Vector: 0.25, Mode: "hybrid-exact"}
	case tokens > 5:
		return Weights{FTS: 0.3, Vector: 0.7, Mode: "hybrid-long"}
	default:
		return Weights{FTS: 0.5, Vector: 0.5, Mode: "hybrid"}
	}
}

// hybridBoost rewards documents found by both backends.
const hybridBoost = 1.10

// FuseScore combines per-backend scores for one document. hasFTS/hasVector
// say which backends returned it.
func FuseScore(w Weights, ftsScore, vectorScore float64, hasFTS, hasVector bool) float64 {
	switch {
	case hasFTS && hasVector:
		return math.Min(1.0, (w.FTS*ftsScore+w.Vector*vectorScore)*hybridBoost)
	case hasFTS:
		return w.FTS * ftsScore
	default:
		return w.Vector * vectorScore
	}
}
