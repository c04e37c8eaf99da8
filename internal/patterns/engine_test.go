package patterns

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfmemory/memoryd/internal/memory"
)

func TestEngine_ProcessOneExtractsAndStoresPatterns(t *testing.T) {
	storage := newFakeStorage()
	ep := &memory.Episode{
		ID:     "ep-1",
		Status: memory.StatusCompleted,
		Salient: &memory.SalientFeatures{
			ToolSequences: [][]string{{"search.query", "edit.apply"}},
		},
	}
	require.NoError(t, storage.PutEpisode(context.Background(), ep))

	e := NewEngine(Options{Storage: storage, Log: logr.Discard()})
	e.processOne(context.Background(), "ep-1")

	var found bool
	storage.mu.Lock()
	for _, p := range storage.patterns {
		if p.Kind == memory.PatternToolSequence {
			found = true
		}
	}
	storage.mu.Unlock()
	assert.True(t, found, "expected a tool-sequence pattern to have been stored")
}

type fakeHeuristicStore struct {
	mu     sync.Mutex
	stored []*memory.Heuristic
}

func (f *fakeHeuristicStore) PutHeuristic(ctx context.Context, h *memory.Heuristic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, h)
	return nil
}

func TestEngine_ProcessOneDistillsHeuristicFromConfidentPattern(t *testing.T) {
	storage := newFakeStorage()
	ep := &memory.Episode{
		ID:     "ep-1",
		Status: memory.StatusCompleted,
		Salient: &memory.SalientFeatures{
			ToolSequences: [][]string{{"search.query", "edit.apply"}},
		},
	}
	require.NoError(t, storage.PutEpisode(context.Background(), ep))

	heuristics := &fakeHeuristicStore{}
	e := NewEngine(Options{Storage: storage, Heuristics: heuristics, Log: logr.Discard()})
	e.processOne(context.Background(), "ep-1")

	heuristics.mu.Lock()
	defer heuristics.mu.Unlock()
	require.NotEmpty(t, heuristics.stored, "expected a distilled heuristic to have been persisted")
}

func TestEngine_ProcessOneSurvivesLookupFailure(t *testing.T) {
	storage := newFakeStorage()
	e := NewEngine(Options{Storage: storage, Log: logr.Discard()})
	// should not panic even though "missing" was never stored
	e.processOne(context.Background(), "missing")
}

func TestEngine_EnqueueDropsOldestOnOverflow(t *testing.T) {
	e := NewEngine(Options{Storage: newFakeStorage(), Log: logr.Discard(), QueueCapacity: 2})
	e.Enqueue("a")
	e.Enqueue("b")
	e.Enqueue("c") // should drop "a"

	first := <-e.queue
	second := <-e.queue
	assert.Equal(t, "b", first)
	assert.Equal(t, "c", second)
}

func TestEngine_StartIsIdempotent(t *testing.T) {
	e := NewEngine(Options{Storage: newFakeStorage(), Log: logr.Discard()})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	e.Start(ctx)
	e.Start(ctx) // must not spawn a second worker pool or panic
}
