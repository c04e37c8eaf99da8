package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DistillHeuristics turns high-confidence patterns into condition-action
// rules consumed by retrieval ranking as an additive tie-break boost.
// This is supplemental to the core spec: original_source/ carried no
// kept files to cross-reference, so the mapping below follows the same
// confidence-floor contract already enforced on patterns (§4.8) rather
// than inventing a separate threshold.
func DistillHeuristics(patterns []*Pattern) []*Heuristic {
	var out []*Heuristic
	for _, p := range patterns {
		if p.Confidence < 0.7 {
			continue
		}
		h := heuristicFor(p)
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func heuristicFor(p *Pattern) *Heuristic {
	switch p.Kind {
	case PatternToolSequence:
		var seq []string
		if err := json.Unmarshal(p.Payload, &seq); err != nil || len(seq) == 0 {
			return nil
		}
		return &Heuristic{
			ID:               heuristicID(p.ID),
			Condition:        fmt.Sprintf("after using %s", seq[0]),
			Action:           fmt.Sprintf("prefer continuing with %v", seq[1:]),
			Confidence:       p.Confidence * p.SuccessRate,
			SourcePatternIDs: []string{p.ID},
		}
	case PatternErrorRecovery:
		var er ErrorRecovery
		if err := json.Unmarshal(p.Payload, &er); err != nil {
			return nil
		}
		return &Heuristic{
			ID:               heuristicID(p.ID),
			Condition:        fmt.Sprintf("error from %s", er.ErrorTool),
			Action:           fmt.Sprintf("recover via %s", er.RecoveryTool),
			Confidence:       p.Confidence * p.SuccessRate,
			SourcePatternIDs: []string{p.ID},
		}
	case PatternDecisionPoint:
		var dp DecisionPoint
		if err := json.Unmarshal(p.Payload, &dp); err != nil {
			return nil
		}
		return &Heuristic{
			ID:               heuristicID(p.ID),
			Condition:        dp.Condition,
			Action:           dp.Action,
			Confidence:       p.Confidence * p.SuccessRate,
			SourcePatternIDs: []string{p.ID},
		}
	default:
		return nil
	}
}

func heuristicID(patternID string) string {
	sum := sha256.Sum256([]byte("heuristic:" + patternID))
	return hex.EncodeToString(sum[:16])
}
