package patterns

import (
	"time"

	"github.com/selfmemory/memoryd/internal/memory"
)

// minConfidence is the confidence floor checked by Discard. The engine
// still stores a merged pattern below it; such a pattern is only left
// out of heuristic distillation.
const minConfidence = 0.7

// Dedup merges a batch of freshly extracted candidates into the current
// stored Pattern (nil if none exists yet) using evidence-weighted
// averaging, not a simple mean: the stored confidence is weighted by the
// pattern's frequency and each fresh candidate counts as one observation,
// so a long-established pattern is not swamped by a single new sample.
func Dedup(current *memory.Pattern, fresh []Candidate) *memory.Pattern {
	if len(fresh) == 0 {
		return current
	}

	var payload []byte
	kind := fresh[0].Kind
	if current != nil {
		payload = current.Payload
		kind = current.Kind
	} else {
		payload = fresh[0].Payload
	}

	totalWeight := 0.0
	weightedConfidence := 0.0
	frequency := 0
	successes := 0.0
	supporting := map[string]struct{}{}

	if current != nil {
		w := float64(current.Frequency)
		totalWeight += w
		weightedConfidence += current.Confidence * w
		frequency = current.Frequency
		successes = current.SuccessRate * float64(current.Frequency)
		for _, id := range current.SupportingEpisodes {
			supporting[id] = struct{}{}
		}
	}

	for _, c := range fresh {
		const candidateWeight = 1.0
		totalWeight += candidateWeight
		weightedConfidence += c.Confidence * candidateWeight
		frequency++
		successes += candidateWeight // a fresh candidate always represents one more observed instance
		supporting[c.EpisodeID] = struct{}{}
	}

	mergedConfidence := weightedConfidence / totalWeight
	successRate := successes / float64(frequency)

	supportingIDs := make([]string, 0, len(supporting))
	for id := range supporting {
		supportingIDs = append(supportingIDs, id)
	}

	now := time.Now()
	firstSeen := now
	if current != nil {
		firstSeen = current.FirstSeen
	}

	id := fresh[0].Key
	if current != nil {
		id = current.ID
	}

	return &memory.Pattern{
		ID:                 id,
		Kind:                kind,
		Payload:             payload,
		Confidence:          mergedConfidence,
		Frequency:           frequency,
		SuccessRate:         successRate,
		SupportingEpisodes:  supportingIDs,
		FirstSeen:           firstSeen,
		LastUsed:            now,
		SchemaVersion:       memory.SchemaVersion,
	}
}

// Discard reports whether a merged pattern falls below the confidence
// floor. The engine calls it after the pattern has been stored, so a
// discarded pattern stays in storage and is kept out of distillation.
func Discard(p *memory.Pattern) bool {
	return p == nil || p.Confidence < minConfidence
}
