package memory

import (
	"context"
	"sync"

	"github.com/selfmemory/memoryd/internal/memerr"
)

// fakeStore is a minimal in-memory Storage/PrimaryStore used to exercise
// the Synchronizer and Capacity Manager without a real database.
type fakeStore struct {
	mu        sync.Mutex
	episodes  map[string]*Episode
	summaries map[string]*Summary
	patterns  map[string]*Pattern
	meta      map[string]string
	repair    []string
	count     int
	failPut   bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		episodes:  make(map[string]*Episode),
		summaries: make(map[string]*Summary),
		patterns:  make(map[string]*Pattern),
		meta:      make(map[string]string),
	}
}

func (f *fakeStore) PutEpisode(ctx context.Context, ep *Episode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return memerr.Unavailable("PutEpisode", nil)
	}
	cp := *ep
	f.episodes[ep.ID] = &cp
	return nil
}

func (f *fakeStore) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[id]
	if !ok {
		return nil, memerr.NotFound("GetEpisode", id)
	}
	cp := *ep
	return &cp, nil
}

func (f *fakeStore) DeleteEpisode(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.episodes[id]; !ok {
		return memerr.NotFound("DeleteEpisode", id)
	}
	delete(f.episodes, id)
	return nil
}

func (f *fakeStore) ListEpisodes(ctx context.Context, filter Filter) ([]*Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Episode
	for _, ep := range f.episodes {
		if filter.Status != "" && ep.Status != filter.Status {
			continue
		}
		cp := *ep
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) PutSummary(ctx context.Context, s *Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.summaries[s.EpisodeID] = &cp
	return nil
}

func (f *fakeStore) GetSummary(ctx context.Context, episodeID string) (*Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.summaries[episodeID]
	if !ok {
		return nil, memerr.NotFound("GetSummary", episodeID)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) DeleteSummary(ctx context.Context, episodeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.summaries[episodeID]; !ok {
		return memerr.NotFound("DeleteSummary", episodeID)
	}
	delete(f.summaries, episodeID)
	return nil
}

func (f *fakeStore) PutPattern(ctx context.Context, p *Pattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns[p.ID] = p
	return nil
}

func (f *fakeStore) GetPattern(ctx context.Context, id string) (*Pattern, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patterns[id]
	if !ok {
		return nil, memerr.NotFound("GetPattern", id)
	}
	return p, nil
}

func (f *fakeStore) UpdatePatternAtomic(ctx context.Context, id string, update func(*Pattern) (*Pattern, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, err := update(f.patterns[id])
	if err != nil {
		return err
	}
	f.patterns[id] = next
	return nil
}

func (f *fakeStore) PutEmbedding(ctx context.Context, e *EmbeddingRecord) error { return nil }
func (f *fakeStore) GetEmbedding(ctx context.Context, episodeID string, dimension int) (*EmbeddingRecord, error) {
	return nil, memerr.NotFound("GetEmbedding", episodeID)
}

func (f *fakeStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.meta[key]
	return v, ok, nil
}

func (f *fakeStore) PutMeta(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[key] = value
	return nil
}

func (f *fakeStore) Count(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeStore) SetCount(ctx context.Context, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count = n
	return nil
}

func (f *fakeStore) Checksum(ctx context.Context, id string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[id]
	if !ok {
		return "", false, nil
	}
	return checksumOf([]byte(ep.ID + string(ep.Status))), true, nil
}

func (f *fakeStore) QueueRepair(ctx context.Context, kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repair = append(f.repair, id)
	return nil
}

func (f *fakeStore) DrainRepairList(ctx context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.repair) {
		limit = len(f.repair)
	}
	out := append([]string(nil), f.repair[:limit]...)
	return out, nil
}

func (f *fakeStore) ClearRepair(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.repair {
		if r == id {
			f.repair = append(f.repair[:i], f.repair[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }
