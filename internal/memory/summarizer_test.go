package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbeddingProvider struct {
	vec []float32
	err error
}

func (f *fakeEmbeddingProvider) Dimensions() int { return len(f.vec) }
func (f *fakeEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}
func (f *fakeEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, f.err
}

func sampleEpisode() *Episode {
	return &Episode{
		ID:              "ep-1",
		TaskDescription: "fix the flaky retry logic in the HTTP client",
		Context:         Context{Domain: "web-api", Language: "go", Tags: []string{"auth"}},
		Steps: []Step{
			{Seq: 1, ToolID: "search.query"},
			{Seq: 2, ToolID: "error.build"},
			{Seq: 3, ToolID: "edit.fix"},
		},
		Salient: &SalientFeatures{
			ErrorRecoveries: []ErrorRecovery{{ErrorStep: 2, RecoveryStep: 3}},
		},
		Outcome: &Outcome{Verdict: VerdictSuccess, ArtifactRefs: []string{"diff-1"}},
	}
}

func TestSummarize_DegradesGracefullyOnProviderFailure(t *testing.T) {
	ep := sampleEpisode()
	provider := &fakeEmbeddingProvider{err: errors.New("connection refused")}

	sm := Summarize(context.Background(), ep, provider, logr.Discard())
	require.NotNil(t, sm)
	assert.Empty(t, sm.Embedding)
	assert.NotEmpty(t, sm.Text)
}

func TestSummarize_AttachesEmbeddingOnSuccess(t *testing.T) {
	ep := sampleEpisode()
	provider := &fakeEmbeddingProvider{vec: []float32{0.1, 0.2, 0.3}}

	sm := Summarize(context.Background(), ep, provider, logr.Discard())
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, sm.Embedding)
}

func TestSummarize_NilProviderSkipsEmbedding(t *testing.T) {
	ep := sampleEpisode()
	sm := Summarize(context.Background(), ep, nil, logr.Discard())
	assert.Nil(t, sm.Embedding)
	assert.NotEmpty(t, sm.Text)
}

func TestSummaryText_MentionsDomainToolsAndOutcome(t *testing.T) {
	text := summaryText(sampleEpisode())
	assert.Contains(t, text, "web-api")
	assert.Contains(t, text, "Completed successfully")
	assert.Contains(t, text, "Recovered from 1 error")
}

func TestKeyConcepts_RanksTagsAndDomainAboveToolNoise(t *testing.T) {
	concepts := keyConcepts(sampleEpisode())
	assert.Contains(t, concepts, "tag:auth")
	assert.Contains(t, concepts, "web-api")
	assert.LessOrEqual(t, len(concepts), 20)
}

func TestCriticalSteps_CapsAtFiveAndIncludesFirstAndLast(t *testing.T) {
	ep := sampleEpisode()
	steps := criticalSteps(ep)
	assert.Contains(t, steps, 1)
	assert.Contains(t, steps, 3)
	assert.LessOrEqual(t, len(steps), 5)
}
