package retrieval

import (
	"github.com/selfmemory/memoryd/internal/memory"
)

// DefaultLambda is the relevance/diversity trade-off from §4.7.
const DefaultLambda = 0.7

// Scored pairs a candidate episode with its combined relevance score and
// whatever summary is available for similarity comparisons during MMR.
type Scored struct {
	Episode *memory.Episode
	Summary *memory.Summary
	Score   float64
}

// MMR greedily selects up to limit results, maximizing
// lambda*relevance - (1-lambda)*max_similarity_to_selected at each step.
// Deterministic given the input ordering: ties are broken by the
// candidate's original position.
func MMR(candidates []Scored, limit int, lambda float64) []Scored {
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	if limit <= 0 || limit > len(candidates) {
		limit = len(candidates)
	}

	remaining := make([]int, len(candidates))
	for i := range remaining {
		remaining[i] = i
	}
	var selected []Scored

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1.0
		bestPos := -1
		for pos, ci := range remaining {
			c := candidates[ci]
			maxSim := 0.0
			for _, s := range selected {
				sim := similarity(c, s)
				if sim > maxSim {
					maxSim = sim
				}
			}
			mmrScore := lambda*c.Score - (1-lambda)*maxSim
			if mmrScore > bestScore {
				bestScore = mmrScore
				bestIdx = ci
				bestPos = pos
			}
		}
		selected = append(selected, candidates[bestIdx])
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return selected
}

// similarity uses cosine over summary embeddings when both candidates
// have one, falling back to Jaccard over key concepts (§4.7 step 4).
func similarity(a, b Scored) float64 {
	if a.Summary != nil && b.Summary != nil && len(a.Summary.Embedding) > 0 && len(b.Summary.Embedding) > 0 {
		return memory.CosineSimilarity(a.Summary.Embedding, b.Summary.Embedding)
	}
	var aConcepts, bConcepts []string
	if a.Summary != nil {
		aConcepts = a.Summary.KeyConcepts
	}
	if b.Summary != nil {
		bConcepts = b.Summary.KeyConcepts
	}
	return memory.JaccardSets(aConcepts, bConcepts)
}
