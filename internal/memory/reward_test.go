package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreReward_SuccessfulEfficientEpisodeScoresHigh(t *testing.T) {
	ep := &Episode{
		Steps: []Step{
			{ToolID: "search.query", LatencyMs: 100, Tokens: 50},
			{ToolID: "edit.apply", LatencyMs: 100, Tokens: 50},
		},
		Outcome: &Outcome{Verdict: VerdictSuccess},
	}
	prior := priorStats{AvgLatencyMs: 400, AvgTokens: 200}

	reward := ScoreReward(ep, nil, prior)
	assert.GreaterOrEqual(t, reward, 0.0)
	assert.LessOrEqual(t, reward, 1.0)
	assert.Greater(t, reward, 0.5)
}

func TestScoreReward_NoPriorBaselineIsNeutral(t *testing.T) {
	ep := &Episode{
		Steps:   []Step{{ToolID: "search.query", LatencyMs: 100, Tokens: 10}},
		Outcome: &Outcome{Verdict: VerdictSuccess},
	}
	reward := ScoreReward(ep, nil, priorStats{})
	assert.GreaterOrEqual(t, reward, 0.0)
	assert.LessOrEqual(t, reward, 1.0)
}

func TestScoreReward_ClampsToUnitInterval(t *testing.T) {
	ep := &Episode{Outcome: &Outcome{Verdict: VerdictFailure}}
	reward := ScoreReward(ep, nil, priorStats{})
	assert.GreaterOrEqual(t, reward, 0.0)
	assert.LessOrEqual(t, reward, 1.0)
}

func TestContextAppropriateness_PenalizesToolsOutsideRequestedSet(t *testing.T) {
	steps := []Step{{ToolID: "search.query"}, {ToolID: "shell.exec"}}
	score := contextAppropriateness(steps, []string{"search"})
	assert.Equal(t, 0.5, score)
}

func TestContextAppropriateness_NoRequestedToolsIsUnconstrained(t *testing.T) {
	assert.Equal(t, 1.0, contextAppropriateness(nil, nil))
}

func TestReflect_NotesErrorRecoveryAndHighReward(t *testing.T) {
	ep := &Episode{
		Outcome: &Outcome{Verdict: VerdictSuccess},
		Salient: &SalientFeatures{ErrorRecoveries: []ErrorRecovery{{ErrorStep: 1, RecoveryStep: 2}}},
	}
	text := Reflect(ep, 0.9)
	assert.Contains(t, text, "Succeeded")
	assert.Contains(t, text, "recovered from errors")
	assert.Contains(t, text, "high-value")
}

func TestReflect_LowRewardNotesLimitedReuse(t *testing.T) {
	ep := &Episode{Outcome: &Outcome{Verdict: VerdictFailure}}
	text := Reflect(ep, 0.1)
	assert.Contains(t, text, "Failed")
	assert.Contains(t, text, "limited reuse signal")
}
