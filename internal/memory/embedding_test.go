package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeEmbedding_RoundTrips(t *testing.T) {
	v := []float32{0.125, -1.5, 3.0, 42.25}
	got := decodeEmbedding(encodeEmbedding(v))
	assert.Equal(t, v, got)
}

func TestEncodeEmbedding_EmptyVectorIsNilBlob(t *testing.T) {
	assert.Nil(t, encodeEmbedding(nil))
	assert.Nil(t, decodeEmbedding(nil))
}

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectorsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}))
}

func TestCosineSimilarity_MismatchedLengthIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
}

func TestKeywordOverlap_SharedTermsScoreAboveZero(t *testing.T) {
	score := keywordOverlap("retry the flaky http request", "the http request failed and needs a retry")
	assert.Greater(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestKeywordOverlap_DisjointTextIsZero(t *testing.T) {
	assert.Equal(t, 0.0, keywordOverlap("alpha beta gamma", "delta epsilon zeta"))
}

func TestJaccardSets_CaseInsensitiveMatch(t *testing.T) {
	assert.Equal(t, 1.0, jaccardSets([]string{"Go", "HTTP"}, []string{"go", "http"}))
}
