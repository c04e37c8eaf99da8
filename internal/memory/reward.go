package memory

import "strings"

// priorStats summarizes prior episodes of the same task type, used to
// normalize efficiency. The caller supplies it (typically derived from a
// small Storage.ListEpisodes call) rather than Reward computing I/O
// itself, keeping this function pure like the Quality Assessor.
type priorStats struct {
	AvgLatencyMs float64
	AvgTokens    float64
}

// ScoreReward computes the synchronous [0,1] reward attached during
// complete_episode, before the pre-storage pipeline runs (§4.9).
func ScoreReward(ep *Episode, requestedTools []string, prior priorStats) float64 {
	outcomeComponent := successScore(ep.Outcome)
	efficiencyComponent := efficiencyScore(ep.Steps, prior)
	qualityComponent := rewardQualitySignal(ep)
	contextComponent := contextAppropriateness(ep.Steps, requestedTools)

	reward := 0.4*outcomeComponent + 0.25*efficiencyComponent + 0.2*qualityComponent + 0.15*contextComponent
	if reward < 0 {
		return 0
	}
	if reward > 1 {
		return 1
	}
	return reward
}

func efficiencyScore(steps []Step, prior priorStats) float64 {
	if len(steps) == 0 {
		return 0.5
	}
	var totalLatency, totalTokens float64
	for _, s := range steps {
		totalLatency += float64(s.LatencyMs)
		totalTokens += float64(s.Tokens)
	}
	if prior.AvgLatencyMs <= 0 && prior.AvgTokens <= 0 {
		return 0.5 // no baseline yet; neutral score
	}
	latencyRatio := 1.0
	if prior.AvgLatencyMs > 0 {
		latencyRatio = prior.AvgLatencyMs / maxFloat(totalLatency, 1)
	}
	tokenRatio := 1.0
	if prior.AvgTokens > 0 {
		tokenRatio = prior.AvgTokens / maxFloat(totalTokens, 1)
	}
	score := (latencyRatio + tokenRatio) / 2
	return clamp01(score)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// rewardQualitySignal reuses the error-handling and reflectiveness
// sub-scores computed for Stage A, avoiding a second pass over steps
// with a different formula for the same signal.
func rewardQualitySignal(ep *Episode) float64 {
	return (errorHandlingScore(ep.Steps) + reflectivenessScore(ep)) / 2
}

// contextAppropriateness compares the tools actually invoked against the
// tools the caller declared up front (the comma-separated
// context.Extra["requested_tools"]),
// rewarding episodes that stayed within the requested toolset.
func contextAppropriateness(steps []Step, requested []string) float64 {
	if len(requested) == 0 {
		return 1.0 // nothing was constrained, so nothing was violated
	}
	allowed := make(map[string]struct{}, len(requested))
	for _, t := range requested {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	if len(steps) == 0 {
		return 0.5
	}
	matched := 0
	for _, s := range steps {
		if _, ok := allowed[strings.ToLower(toolFamily(s.ToolID))]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(steps))
}

// Reflect produces the short structured reflection text attached to the
// episode, consumed by the Salient Feature Extractor's context markers
// and by future retrievals as a text-similarity boost.
func Reflect(ep *Episode, reward float64) string {
	var b strings.Builder
	if ep.Outcome != nil {
		switch ep.Outcome.Verdict {
		case VerdictSuccess:
			b.WriteString("Succeeded")
		case VerdictPartialSuccess:
			b.WriteString("Partially succeeded")
		case VerdictFailure:
			b.WriteString("Failed")
		}
	}
	if ep.Salient != nil && len(ep.Salient.ErrorRecoveries) > 0 {
		b.WriteString("; recovered from errors mid-task")
	}
	if reward >= 0.8 {
		b.WriteString("; high-value episode worth reusing")
	} else if reward < 0.4 {
		b.WriteString("; low-value episode, limited reuse signal")
	}
	return b.String()
}
