package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-logr/logr"
)

// Summarize is Stage C of the pre-storage pipeline. It degrades
// gracefully: an embedding-provider failure is logged and the summary is
// still returned without a vector, per spec.md §4.2.
func Summarize(ctx context.Context, ep *Episode, provider EmbeddingProvider, log logr.Logger) *Summary {
	text := summaryText(ep)
	concepts := keyConcepts(ep)
	critical := criticalSteps(ep)

	sm := &Summary{
		EpisodeID:     ep.ID,
		Text:          text,
		KeyConcepts:   concepts,
		CriticalSteps: critical,
		SchemaVersion: SchemaVersion,
	}

	if provider != nil {
		vec, err := provider.Embed(ctx, text)
		if err != nil {
			log.V(1).Info("embedding provider failed, summary stored without vector",
				"episode_id", ep.ID, "error", err.Error())
		} else {
			sm.Embedding = vec
		}
	}

	return sm
}

// summaryText assembles a 100-200-word free-text description from the
// episode's context, tool usage, and outcome. It is deliberately
// extractive rather than generative: no external model call is required
// unless a provider is present for the embedding step only.
func summaryText(ep *Episode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %q in domain %s", truncateWords(ep.TaskDescription, 30), orElse(ep.Context.Domain, "unspecified"))
	if ep.Context.Language != "" {
		fmt.Fprintf(&b, " (%s)", ep.Context.Language)
	}
	b.WriteString(". ")

	tools := distinctTools(ep.Steps)
	if len(tools) > 0 {
		fmt.Fprintf(&b, "Used %d step(s) across tools: %s. ", len(ep.Steps), strings.Join(tools, ", "))
	}

	if ep.Salient != nil {
		if len(ep.Salient.ErrorRecoveries) > 0 {
			fmt.Fprintf(&b, "Recovered from %d error(s) during execution. ", len(ep.Salient.ErrorRecoveries))
		}
		if len(ep.Salient.DecisionPoints) > 0 {
			fmt.Fprintf(&b, "Made %d notable branching decision(s). ", len(ep.Salient.DecisionPoints))
		}
	}

	if ep.Outcome != nil {
		switch ep.Outcome.Verdict {
		case VerdictSuccess:
			b.WriteString("Completed successfully")
			if len(ep.Outcome.ArtifactRefs) > 0 {
				fmt.Fprintf(&b, " producing %d artifact(s)", len(ep.Outcome.ArtifactRefs))
			}
			b.WriteString(". ")
		case VerdictPartialSuccess:
			b.WriteString("Completed with partial success. ")
		case VerdictFailure:
			fmt.Fprintf(&b, "Failed: %s. ", orElse(ep.Outcome.FailureReason, "no reason given"))
		}
	}

	if ep.Reflection != "" {
		fmt.Fprintf(&b, "Reflection: %s", truncateWords(ep.Reflection, 60))
	}

	return clampWords(b.String(), 100, 200)
}

func orElse(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func distinctTools(steps []Step) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range steps {
		if _, ok := seen[s.ToolID]; !ok {
			seen[s.ToolID] = struct{}{}
			out = append(out, s.ToolID)
		}
	}
	return out
}

func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "..."
}

// clampWords pads nothing (an honest short summary is allowed to stay
// short) but truncates anything over max words, matching the 100-200
// word *target* rather than a hard-enforced minimum.
func clampWords(s string, min, max int) string {
	words := strings.Fields(s)
	if len(words) > max {
		return strings.Join(words[:max], " ") + "..."
	}
	return s
}

// keyConcepts picks at most 20 tokens (tool families, context tags, the
// domain and the outcome verdict), ranked by frequency. There is no
// minimum: an episode with fewer distinct tokens yields fewer than 10.
func keyConcepts(ep *Episode) []string {
	freq := make(map[string]int)
	for _, s := range ep.Steps {
		freq[toolFamily(s.ToolID)]++
	}
	for _, t := range ep.Context.Tags {
		freq["tag:"+t] += 2 // tags are explicit signal, weighted up
	}
	if ep.Context.Domain != "" {
		freq[ep.Context.Domain] += 2
	}
	if ep.Outcome != nil {
		freq[string(ep.Outcome.Verdict)] += 1
	}

	type kv struct {
		k string
		v int
	}
	var sorted []kv
	for k, v := range freq {
		sorted = append(sorted, kv{k, v})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].v != sorted[j].v {
			return sorted[i].v > sorted[j].v
		}
		return sorted[i].k < sorted[j].k
	})

	const maxConcepts = 20
	out := make([]string, 0, maxConcepts)
	for _, e := range sorted {
		if len(out) >= maxConcepts {
			break
		}
		out = append(out, e.k)
	}
	return out
}

// criticalSteps collects the decision-point steps, both steps of each
// error recovery, and the first and last step of the episode, capped at
// 5 per spec.md §3. They are returned in step order, not ranked by
// salience, so when more than 5 qualify the earliest five are kept.
func criticalSteps(ep *Episode) []int {
	salientSeqs := make(map[int]struct{})
	if ep.Salient != nil {
		for _, dp := range ep.Salient.DecisionPoints {
			salientSeqs[dp.AtStep] = struct{}{}
		}
		for _, er := range ep.Salient.ErrorRecoveries {
			salientSeqs[er.ErrorStep] = struct{}{}
			salientSeqs[er.RecoveryStep] = struct{}{}
		}
	}
	if len(ep.Steps) > 0 {
		salientSeqs[ep.Steps[0].Seq] = struct{}{}
		salientSeqs[ep.Steps[len(ep.Steps)-1].Seq] = struct{}{}
	}

	var ordered []int
	for _, s := range ep.Steps {
		if _, ok := salientSeqs[s.Seq]; ok {
			ordered = append(ordered, s.Seq)
		}
	}
	const maxCritical = 5
	if len(ordered) > maxCritical {
		ordered = ordered[:maxCritical]
	}
	return ordered
}
