package patterns

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/go-logr/logr"

	"github.com/selfmemory/memoryd/internal/memory"
	"github.com/selfmemory/memoryd/internal/obslog"
)

const defaultQueueCapacity = 10_000
const defaultWorkerCount = 4

// HeuristicStore persists distilled condition-action rules. It is a
// narrow, optional capability: a nil HeuristicStore simply skips
// distillation, matching how a nil EmbeddingProvider skips summarization
// elsewhere in the engine.
type HeuristicStore interface {
	PutHeuristic(ctx context.Context, h *memory.Heuristic) error
}

// Engine is the asynchronous Pattern Extraction Engine: a bounded FIFO
// in front of a worker pool running the hybrid extractor family, never
// blocking the Lifecycle Manager's completion path (§4.8, §9).
type Engine struct {
	storage    memory.Storage
	heuristics HeuristicStore
	extractors []Extractor
	workers    int
	log        logr.Logger

	queue   chan string
	mu      sync.Mutex
	started bool
}

type Options struct {
	Storage       memory.Storage
	Heuristics    HeuristicStore
	Extractors    []Extractor
	Workers       int
	QueueCapacity int
	Log           logr.Logger
}

func NewEngine(opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkerCount
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.Extractors == nil {
		opts.Extractors = DefaultExtractors()
	}
	return &Engine{
		storage:    opts.Storage,
		heuristics: opts.Heuristics,
		extractors: opts.Extractors,
		workers:    opts.Workers,
		log:        opts.Log,
		queue:      make(chan string, opts.QueueCapacity),
	}
}

// Start launches the worker pool. Safe to call once; subsequent calls
// are no-ops.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	for i := 0; i < e.workers; i++ {
		go e.worker(ctx)
	}
}

// Enqueue offers an episode id to the bounded queue. On overflow the
// oldest queued id is dropped (with a logged warning) to make room,
// rather than blocking the caller, per §4.8.
func (e *Engine) Enqueue(episodeID string) {
	select {
	case e.queue <- episodeID:
		return
	default:
	}

	select {
	case dropped := <-e.queue:
		e.log.Info("pattern queue full, dropping oldest entry", "dropped_episode_id", dropped)
	default:
	}
	select {
	case e.queue <- episodeID:
	default:
		e.log.Info("pattern queue still full after drop, discarding new entry", "episode_id", episodeID)
	}
}

func (e *Engine) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case episodeID, ok := <-e.queue:
			if !ok {
				return
			}
			e.processOne(ctx, episodeID)
		}
	}
}

// processOne runs the full extractor family over one episode and
// persists every merged pattern; only those at or above the confidence
// floor go on to heuristic distillation. Failures are always
// recovered locally and logged with the responsible episode id (§4.8,
// §7); the worker continues with the next item regardless.
func (e *Engine) processOne(ctx context.Context, episodeID string) {
	ep, err := e.storage.GetEpisode(ctx, episodeID)
	if err != nil {
		obslog.HandledFailure(e.log, "PatternExtraction", "lookup_failed", episodeID, err)
		return
	}

	candidates := e.extractAll(ep)
	if len(candidates) == 0 {
		return
	}

	byKey := make(map[string][]Candidate)
	for _, c := range candidates {
		byKey[c.Key] = append(byKey[c.Key], c)
	}

	var stored []*memory.Pattern
	for key, group := range byKey {
		id := patternID(key)
		err := e.storage.UpdatePatternAtomic(ctx, id, func(current *memory.Pattern) (*memory.Pattern, error) {
			merged := Dedup(current, group)
			merged.ID = id
			return merged, nil
		})
		if err != nil {
			obslog.HandledFailure(e.log, "PatternExtraction", "update_failed", episodeID, err)
			continue
		}

		p, err := e.storage.GetPattern(ctx, id)
		if err != nil {
			continue
		}
		if Discard(p) {
			// Below the confidence floor: leave it stored (future
			// episodes may raise its confidence) but it is excluded
			// from any read-path consumer, including distillation below.
			continue
		}
		stored = append(stored, p)
	}

	e.distillHeuristics(ctx, episodeID, stored)
}

// extractAll runs the hybrid extractor family concurrently, since each
// extractor only reads ep and never shares mutable state (§4.8 "hybrid
// extractor family ... run in parallel").
func (e *Engine) extractAll(ep *memory.Episode) []Candidate {
	results := make([][]Candidate, len(e.extractors))
	var wg sync.WaitGroup
	for i, extractor := range e.extractors {
		wg.Add(1)
		go func(i int, extractor Extractor) {
			defer wg.Done()
			results[i] = extractor.Extract(ep)
		}(i, extractor)
	}
	wg.Wait()

	var candidates []Candidate
	for _, r := range results {
		candidates = append(candidates, r...)
	}
	return candidates
}

// distillHeuristics turns this episode's high-confidence patterns into
// condition-action rules and persists them, per §C.1. A nil
// HeuristicStore (or a persistence failure) only skips distillation; it
// never fails pattern extraction itself.
func (e *Engine) distillHeuristics(ctx context.Context, episodeID string, patterns []*memory.Pattern) {
	if e.heuristics == nil || len(patterns) == 0 {
		return
	}
	for _, h := range memory.DistillHeuristics(patterns) {
		if err := e.heuristics.PutHeuristic(ctx, h); err != nil {
			obslog.HandledFailure(e.log, "PatternExtraction", "heuristic_store_failed", episodeID, err)
		}
	}
}

// patternID derives a stable identity key so repeated extraction of the
// same structural pattern resolves to the same stored record.
func patternID(similarityKey string) string {
	sum := sha256.Sum256([]byte(similarityKey))
	return hex.EncodeToString(sum[:16])
}
