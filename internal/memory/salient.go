package memory

import "strings"

// isErrorTool is the naming convention the salient extractor and quality
// assessor both use to recognize an error-signaling step: a tool id
// containing "error", "fail", or "retry".
func isErrorTool(toolID string) bool {
	l := strings.ToLower(toolID)
	return strings.Contains(l, "error") || strings.Contains(l, "fail") || strings.Contains(l, "retry")
}

// ExtractSalientFeatures is Stage B of the pre-storage pipeline: four
// rule-based sub-extractors run once over the step sequence, O(n) total.
func ExtractSalientFeatures(ep *Episode) *SalientFeatures {
	steps := ep.Steps
	return &SalientFeatures{
		DecisionPoints:  extractDecisionPoints(steps),
		ToolSequences:   extractToolSequences(steps),
		ErrorRecoveries: extractErrorRecoveries(steps),
		ContextMarkers:  extractContextMarkers(ep),
	}
}

// extractDecisionPoints treats a change of tool family (the substring
// before the first '.') as a branch: condition is the prior tool, action
// the new one.
func extractDecisionPoints(steps []Step) []DecisionPoint {
	var out []DecisionPoint
	for i := 1; i < len(steps); i++ {
		prevFamily := toolFamily(steps[i-1].ToolID)
		curFamily := toolFamily(steps[i].ToolID)
		if prevFamily != curFamily {
			out = append(out, DecisionPoint{
				Condition: "after:" + steps[i-1].ToolID,
				Action:    steps[i].ToolID,
				AtStep:    steps[i].Seq,
			})
		}
	}
	return out
}

func toolFamily(toolID string) string {
	if idx := strings.Index(toolID, "."); idx >= 0 {
		return toolID[:idx]
	}
	return toolID
}

// extractToolSequences collects distinct contiguous tool-id n-grams for
// n in 2..4, the same window the pattern engine's tool-sequence
// extractor later mines across episodes.
func extractToolSequences(steps []Step) [][]string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ToolID
	}
	seen := make(map[string]struct{})
	var out [][]string
	for n := 2; n <= 4; n++ {
		if len(ids) < n {
			continue
		}
		for i := 0; i+n <= len(ids); i++ {
			gram := ids[i : i+n]
			key := strings.Join(gram, "->")
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			cp := make([]string, n)
			copy(cp, gram)
			out = append(out, cp)
		}
	}
	return out
}

func extractErrorRecoveries(steps []Step) []ErrorRecovery {
	var out []ErrorRecovery
	for i := 1; i < len(steps); i++ {
		if isErrorTool(steps[i-1].ToolID) && !isErrorTool(steps[i].ToolID) {
			out = append(out, ErrorRecovery{
				ErrorStep:    steps[i-1].Seq,
				RecoveryStep: steps[i].Seq,
				ErrorTool:    steps[i-1].ToolID,
				RecoveryTool: steps[i].ToolID,
			})
		}
	}
	return out
}

// extractContextMarkers surfaces the episode's domain, language, and
// tags as retrieval-time boosters, plus any non-empty reflection.
func extractContextMarkers(ep *Episode) []string {
	var out []string
	if ep.Context.Domain != "" {
		out = append(out, "domain:"+ep.Context.Domain)
	}
	if ep.Context.Language != "" {
		out = append(out, "language:"+ep.Context.Language)
	}
	for _, t := range ep.Context.Tags {
		out = append(out, "tag:"+t)
	}
	if ep.Reflection != "" {
		out = append(out, "reflective")
	}
	return out
}
