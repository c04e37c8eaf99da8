// Package patterns implements the asynchronous Pattern Extraction
// Engine: a bounded queue, a worker pool running the hybrid extractor
// family, and evidence-weighted deduplication (spec.md §4.8).
package patterns

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/selfmemory/memoryd/internal/memory"
)

// Candidate is the common shape every extractor emits, tagged by kind so
// dedup and storage stay single functions over a tagged variant instead
// of an inheritance hierarchy (§9 design note).
type Candidate struct {
	Kind       memory.PatternKind
	Key        string // similarity key: exact-match normalized payload hash
	Payload    json.RawMessage
	Confidence float64
	EpisodeID  string
}

// Extractor is the small capability every member of the hybrid family
// implements; the engine is parameterized over a set of these.
type Extractor interface {
	Extract(ep *memory.Episode) []Candidate
}

// ToolSequenceExtractor finds recurring tool-id n-grams, n in 2..4,
// reusing the same windowing the salient extractor computes per episode.
type ToolSequenceExtractor struct{}

func (ToolSequenceExtractor) Extract(ep *memory.Episode) []Candidate {
	if ep.Salient == nil {
		return nil
	}
	var out []Candidate
	for _, seq := range ep.Salient.ToolSequences {
		payload, _ := json.Marshal(seq)
		out = append(out, Candidate{
			Kind:       memory.PatternToolSequence,
			Key:        "toolseq:" + strings.Join(seq, ">"),
			Payload:    payload,
			Confidence: 0.75,
			EpisodeID:  ep.ID,
		})
	}
	return out
}

// DecisionPointExtractor promotes the salient decision points already
// identified for the episode into pattern candidates.
type DecisionPointExtractor struct{}

func (DecisionPointExtractor) Extract(ep *memory.Episode) []Candidate {
	if ep.Salient == nil {
		return nil
	}
	var out []Candidate
	for _, dp := range ep.Salient.DecisionPoints {
		payload, _ := json.Marshal(dp)
		out = append(out, Candidate{
			Kind:       memory.PatternDecisionPoint,
			Key:        fmt.Sprintf("decision:%s->%s", dp.Condition, dp.Action),
			Payload:    payload,
			Confidence: 0.7,
			EpisodeID:  ep.ID,
		})
	}
	return out
}

// ErrorRecoveryExtractor mines error-step -> recovery-step transitions.
type ErrorRecoveryExtractor struct{}

func (ErrorRecoveryExtractor) Extract(ep *memory.Episode) []Candidate {
	if ep.Salient == nil {
		return nil
	}
	var out []Candidate
	for _, er := range ep.Salient.ErrorRecoveries {
		payload, _ := json.Marshal(er)
		confidence := 0.7
		if ep.Outcome != nil && ep.Outcome.Verdict == memory.VerdictSuccess {
			confidence = 0.85 // recovery that led to a successful episode is stronger evidence
		}
		out = append(out, Candidate{
			Kind:       memory.PatternErrorRecovery,
			Key:        fmt.Sprintf("recovery:%s->%s", er.ErrorTool, er.RecoveryTool),
			Payload:    payload,
			Confidence: confidence,
			EpisodeID:  ep.ID,
		})
	}
	return out
}

// ContextPatternExtractor associates context markers with the outcome
// distribution, emitting one candidate per marker per episode; dedup
// accumulates the evidence across episodes.
type ContextPatternExtractor struct{}

func (ContextPatternExtractor) Extract(ep *memory.Episode) []Candidate {
	if ep.Salient == nil || ep.Outcome == nil {
		return nil
	}
	var out []Candidate
	for _, marker := range ep.Salient.ContextMarkers {
		payload, _ := json.Marshal(struct {
			Marker  string         `json:"marker"`
			Verdict memory.Verdict `json:"verdict"`
		}{marker, ep.Outcome.Verdict})
		confidence := 0.7
		if ep.Outcome.Verdict == memory.VerdictSuccess {
			confidence = 0.75
		} else {
			confidence = 0.6
		}
		out = append(out, Candidate{
			Kind:       memory.PatternContext,
			Key:        "context:" + marker,
			Payload:    payload,
			Confidence: confidence,
			EpisodeID:  ep.ID,
		})
	}
	return out
}

// DefaultExtractors is the hybrid extractor family run over every
// dequeued episode, per §4.8.
func DefaultExtractors() []Extractor {
	return []Extractor{
		ToolSequenceExtractor{},
		DecisionPointExtractor{},
		ErrorRecoveryExtractor{},
		ContextPatternExtractor{},
	}
}
