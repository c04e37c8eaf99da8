package memory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistillHeuristics_SkipsLowConfidencePatterns(t *testing.T) {
	seq, _ := json.Marshal([]string{"search.query", "edit.apply"})
	patterns := []*Pattern{
		{ID: "p-low", Kind: PatternToolSequence, Payload: seq, Confidence: 0.5, SuccessRate: 1.0},
		{ID: "p-high", Kind: PatternToolSequence, Payload: seq, Confidence: 0.9, SuccessRate: 1.0},
	}
	out := DistillHeuristics(patterns)
	require.Len(t, out, 1)
	assert.Equal(t, heuristicID("p-high"), out[0].ID)
}

func TestHeuristicFor_ErrorRecoveryBuildsConditionAction(t *testing.T) {
	payload, _ := json.Marshal(ErrorRecovery{ErrorTool: "build.run", RecoveryTool: "build.fix"})
	p := &Pattern{ID: "p-1", Kind: PatternErrorRecovery, Payload: payload, Confidence: 0.8, SuccessRate: 0.9}

	h := heuristicFor(p)
	require.NotNil(t, h)
	assert.Equal(t, "error from build.run", h.Condition)
	assert.Equal(t, "recover via build.fix", h.Action)
	assert.InDelta(t, 0.72, h.Confidence, 0.001)
}

func TestHeuristicFor_UnknownKindReturnsNil(t *testing.T) {
	p := &Pattern{ID: "p-1", Kind: PatternContext, Payload: []byte(`{}`)}
	assert.Nil(t, heuristicFor(p))
}

func TestHeuristicFor_MalformedPayloadReturnsNil(t *testing.T) {
	p := &Pattern{ID: "p-1", Kind: PatternDecisionPoint, Payload: []byte(`not json`)}
	assert.Nil(t, heuristicFor(p))
}
