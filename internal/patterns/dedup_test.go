package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/selfmemory/memoryd/internal/memory"
)

func TestDedup_MergesFreshCandidatesIntoExistingPattern(t *testing.T) {
	current := &memory.Pattern{
		ID:                 "p1",
		Kind:                memory.PatternToolSequence,
		Confidence:          0.9,
		Frequency:           9,
		SuccessRate:         1.0,
		SupportingEpisodes:  []string{"ep-1"},
	}
	fresh := []Candidate{
		{Kind: memory.PatternToolSequence, Key: "toolseq:a>b", Confidence: 0.6, EpisodeID: "ep-2"},
	}

	merged := Dedup(current, fresh)
	assert.Equal(t, "p1", merged.ID)
	assert.Equal(t, 10, merged.Frequency)
	assert.ElementsMatch(t, []string{"ep-1", "ep-2"}, merged.SupportingEpisodes)
	// weighted toward the heavier existing evidence (weight 9) over the single fresh sample (weight 1)
	assert.Greater(t, merged.Confidence, 0.6)
	assert.Less(t, merged.Confidence, 0.9)
}

func TestDedup_NilCurrentSeedsFromFirstCandidate(t *testing.T) {
	fresh := []Candidate{
		{Kind: memory.PatternErrorRecovery, Key: "recovery:a->b", Confidence: 0.8, EpisodeID: "ep-1"},
	}
	merged := Dedup(nil, fresh)
	assert.Equal(t, "recovery:a->b", merged.ID)
	assert.Equal(t, 0.8, merged.Confidence)
	assert.Equal(t, 1, merged.Frequency)
}

func TestDedup_EmptyFreshReturnsCurrentUnchanged(t *testing.T) {
	current := &memory.Pattern{ID: "p1", Confidence: 0.8}
	assert.Same(t, current, Dedup(current, nil))
}

func TestDiscard_BelowConfidenceFloor(t *testing.T) {
	assert.True(t, Discard(&memory.Pattern{Confidence: 0.5}))
	assert.True(t, Discard(nil))
	assert.False(t, Discard(&memory.Pattern{Confidence: 0.71}))
}
