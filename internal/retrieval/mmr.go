package retrieval

import (
	"math"

	"github.com/rcliao/meeting-rag/internal/embedding"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

// selectMMR greedily picks k candidates maximizing
// lambda*relevance - (1-lambda)*max similarity to anything already picked.
// Candidates arrive in relevance order; ties keep that order. A candidate
// whose score is not comparable (NaN) is still picked once nothing better
// remains.
func selectMMR(candidates []vectorstore.Match, k int, lambda float64) []vectorstore.Match {
	if k > len(candidates) {
		k = len(candidates)
	}
	selected := make([]vectorstore.Match, 0, k)
	used := make([]bool, len(candidates))

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i, c := range candidates {
			if used[i] {
				continue
			}
			penalty := 0.0
			for _, s := range selected {
				if sim := embedding.CosineSimilarity(c.Vector, s.Vector); sim > penalty {
					penalty = sim
				}
			}
			score := lambda*c.Score - (1-lambda)*penalty
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, candidates[best])
	}
	return selected
}
