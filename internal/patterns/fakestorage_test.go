package patterns

import (
	"context"
	"sync"

	"github.com/selfmemory/memoryd/internal/memerr"
	"github.com/selfmemory/memoryd/internal/memory"
)

// fakeStorage is a minimal in-memory memory.Storage used to exercise the
// Pattern Extraction Engine without a real database.
type fakeStorage struct {
	mu       sync.Mutex
	episodes map[string]*memory.Episode
	patterns map[string]*memory.Pattern
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		episodes: make(map[string]*memory.Episode),
		patterns: make(map[string]*memory.Pattern),
	}
}

func (f *fakeStorage) PutEpisode(ctx context.Context, ep *memory.Episode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.episodes[ep.ID] = ep
	return nil
}

func (f *fakeStorage) GetEpisode(ctx context.Context, id string) (*memory.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[id]
	if !ok {
		return nil, memerr.NotFound("GetEpisode", id)
	}
	return ep, nil
}

func (f *fakeStorage) DeleteEpisode(ctx context.Context, id string) error { return nil }
func (f *fakeStorage) ListEpisodes(ctx context.Context, filter memory.Filter) ([]*memory.Episode, error) {
	return nil, nil
}

func (f *fakeStorage) PutSummary(ctx context.Context, s *memory.Summary) error { return nil }
func (f *fakeStorage) GetSummary(ctx context.Context, episodeID string) (*memory.Summary, error) {
	return nil, memerr.NotFound("GetSummary", episodeID)
}
func (f *fakeStorage) DeleteSummary(ctx context.Context, episodeID string) error { return nil }

func (f *fakeStorage) PutPattern(ctx context.Context, p *memory.Pattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns[p.ID] = p
	return nil
}

func (f *fakeStorage) GetPattern(ctx context.Context, id string) (*memory.Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patterns[id]
	if !ok {
		return nil, memerr.NotFound("GetPattern", id)
	}
	return p, nil
}

func (f *fakeStorage) UpdatePatternAtomic(ctx context.Context, id string, update func(*memory.Pattern) (*memory.Pattern, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := update(f.patterns[id])
	if err != nil {
		return err
	}
	f.patterns[id] = next
	return nil
}

func (f *fakeStorage) PutEmbedding(ctx context.Context, e *memory.EmbeddingRecord) error { return nil }
func (f *fakeStorage) GetEmbedding(ctx context.Context, episodeID string, dimension int) (*memory.EmbeddingRecord, error) {
	return nil, memerr.NotFound("GetEmbedding", episodeID)
}

func (f *fakeStorage) GetMeta(ctx context.Context, key string) (string, bool, error) { return "", false, nil }
func (f *fakeStorage) PutMeta(ctx context.Context, key, value string) error          { return nil }
func (f *fakeStorage) Count(ctx context.Context) (int, error)                        { return len(f.episodes), nil }
func (f *fakeStorage) Checksum(ctx context.Context, id string) (string, bool, error) { return "", false, nil }
func (f *fakeStorage) Close() error                                                  { return nil }
