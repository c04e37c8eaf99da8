package memory

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

// encodeEmbedding packs a float32 vector as a little-endian blob, the way
// the teacher's learning store packs embedding columns.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// CosineSimilarity, KeywordOverlap, and JaccardSets are exported so the
// retrieval package can reuse this package's similarity primitives.
func CosineSimilarity(a, b []float32) float64 { return cosineSimilarity(a, b) }
func KeywordOverlap(a, b string) float64      { return keywordOverlap(a, b) }
func JaccardSets(a, b []string) float64       { return jaccardSets(a, b) }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// HTTPEmbeddingProvider calls an OpenAI-style /embeddings endpoint, the
// same shape the teacher's LMStudioEmbedding used, generalized to accept
// any base URL and model (so it doubles as the LM Studio, Ollama, or any
// self-hosted OpenAI-compatible embedding backend).
type HTTPEmbeddingProvider struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
}

func NewHTTPEmbeddingProvider(baseURL, model string, dimensions int) *HTTPEmbeddingProvider {
	return &HTTPEmbeddingProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *HTTPEmbeddingProvider) Dimensions() int { return p.dimensions }

func (p *HTTPEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embedding provider returned no vectors")
	}
	return vecs[0], nil
}

func (p *HTTPEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embeddingRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding provider returned status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	out := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// keywordTokens lowercases and splits text into a word set, used by the
// fallback text-similarity metric when no embedding provider is configured.
func keywordTokens(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			set[f] = struct{}{}
		}
	}
	return set
}

// keywordOverlap is the Jaccard index over token sets, the degraded
// text-similarity signal used whenever embeddings are unavailable (§7,
// retrieval scenario 5).
func keywordOverlap(a, b string) float64 {
	ta, tb := keywordTokens(a), keywordTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// jaccardSets is the same metric over pre-tokenized sets, used by MMR's
// key-concept fallback when summary embeddings are absent.
func jaccardSets(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	sa := make(map[string]struct{}, len(a))
	for _, s := range a {
		sa[strings.ToLower(s)] = struct{}{}
	}
	inter, sb := 0, make(map[string]struct{}, len(b))
	for _, s := range b {
		ls := strings.ToLower(s)
		sb[ls] = struct{}{}
		if _, ok := sa[ls]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
