package memory

// QualityWeights are the configurable sub-score weights for Stage A.
// Defaults sum to 1.0; callers may override but a mismatched sum is
// normalized at assessment time rather than rejected, matching the
// spec's framing of weights as tunable, not invariant.
type QualityWeights struct {
	Complexity     float64
	Diversity      float64
	ErrorHandling  float64
	Reflectiveness float64
	Success        float64
}

// DefaultQualityWeights mirrors spec.md §4.2's default sub-score mix.
func DefaultQualityWeights() QualityWeights {
	return QualityWeights{
		Complexity:     0.25,
		Diversity:      0.2,
		ErrorHandling:  0.2,
		Reflectiveness: 0.15,
		Success:        0.2,
	}
}

// QualityScore is the breakdown produced by the assessor, kept around so
// a rejection log line can name which sub-scores failed.
type QualityScore struct {
	Complexity     float64
	Diversity      float64
	ErrorHandling  float64
	Reflectiveness float64
	Success        float64
	Weighted       float64
}

// AssessQuality is Stage A of the pre-storage pipeline: a pure function,
// no I/O, producing an interpretable weighted score. Episode.Outcome must
// already be set by the time this runs.
func AssessQuality(ep *Episode, w QualityWeights) QualityScore {
	sum := w.Complexity + w.Diversity + w.ErrorHandling + w.Reflectiveness + w.Success
	if sum <= 0 {
		w = DefaultQualityWeights()
		sum = 1.0
	}

	q := QualityScore{
		Complexity:     complexityScore(ep.Steps),
		Diversity:      diversityScore(ep.Steps),
		ErrorHandling:  errorHandlingScore(ep.Steps),
		Reflectiveness: reflectivenessScore(ep),
		Success:        successScore(ep.Outcome),
	}
	q.Weighted = (w.Complexity*q.Complexity +
		w.Diversity*q.Diversity +
		w.ErrorHandling*q.ErrorHandling +
		w.Reflectiveness*q.Reflectiveness +
		w.Success*q.Success) / sum
	return q
}

// complexityScore rewards a meaningful number of distinct steps without
// over-rewarding length; saturates at 20 steps.
func complexityScore(steps []Step) float64 {
	n := len(steps)
	if n == 0 {
		return 0
	}
	const saturation = 20.0
	if float64(n) >= saturation {
		return 1.0
	}
	return float64(n) / saturation
}

func diversityScore(steps []Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	tools := make(map[string]struct{})
	for _, s := range steps {
		tools[s.ToolID] = struct{}{}
	}
	const saturation = 6.0
	d := float64(len(tools))
	if d >= saturation {
		return 1.0
	}
	return d / saturation
}

// errorHandlingScore checks for at least one error->recovery transition,
// inferred from tool-id naming convention the same way the salient
// extractor detects them (see isErrorTool in salient.go).
func errorHandlingScore(steps []Step) float64 {
	for i := 1; i < len(steps); i++ {
		if isErrorTool(steps[i-1].ToolID) && !isErrorTool(steps[i].ToolID) {
			return 1.0
		}
	}
	if len(steps) == 0 {
		return 0
	}
	return 0.5 // no error->recovery transition, whether or not an error occurred
}

func reflectivenessScore(ep *Episode) float64 {
	if ep.Outcome == nil {
		return 0
	}
	artifacts := len(ep.Outcome.ArtifactRefs) + len(ep.Outcome.PartialArtifacts)
	if artifacts == 0 {
		return 0
	}
	const saturation = 3.0
	if float64(artifacts) >= saturation {
		return 1.0
	}
	return float64(artifacts) / saturation
}

func successScore(o *Outcome) float64 {
	if o == nil {
		return 0
	}
	switch o.Verdict {
	case VerdictSuccess:
		return 1.0
	case VerdictPartialSuccess:
		return 0.5
	default:
		return 0.0
	}
}

// FailingSubScores names sub-scores below a per-component pass bar, for
// the structured rejection log line required by §4.2.
func FailingSubScores(q QualityScore) []string {
	const bar = 0.3
	var failing []string
	if q.Complexity < bar {
		failing = append(failing, "complexity")
	}
	if q.Diversity < bar {
		failing = append(failing, "diversity")
	}
	if q.ErrorHandling < bar {
		failing = append(failing, "error_handling")
	}
	if q.Reflectiveness < bar {
		failing = append(failing, "reflectiveness")
	}
	if q.Success < bar {
		failing = append(failing, "success")
	}
	return failing
}
