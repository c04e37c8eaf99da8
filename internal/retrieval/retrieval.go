package retrieval

import (
	"context"
	"math"
	"time"

	"github.com/go-logr/logr"

	"github.com/selfmemory/memoryd/internal/memory"
)

// SpatiotemporalIndex is the narrow surface Engine needs from the index
// package, named locally so tests can substitute a fake.
type SpatiotemporalIndex interface {
	Query(domain string, taskType memory.TaskType, since, until time.Time) []string
}

// HeuristicSource is the narrow surface Engine needs to read distilled
// condition-action rules for the ranking tie-break boost (§C.1). A nil
// HeuristicSource just skips the boost, the same nil-safe shape as a nil
// SpatiotemporalIndex skips index-backed candidate selection.
type HeuristicSource interface {
	ListHeuristics(ctx context.Context) ([]*memory.Heuristic, error)
}

// Engine answers retrieve_relevant_context per §4.7's five-step pipeline.
type Engine struct {
	storage    memory.Storage
	idx        SpatiotemporalIndex
	heuristics HeuristicSource
	cache      *QueryCache
	log        logr.Logger
	lambda     float64
}

func NewEngine(storage memory.Storage, idx SpatiotemporalIndex, cache *QueryCache, lambda float64, log logr.Logger) *Engine {
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	return &Engine{storage: storage, idx: idx, cache: cache, log: log, lambda: lambda}
}

// SetHeuristicSource wires the optional heuristic-boost reader. Called
// separately from NewEngine so existing call sites (and tests) that don't
// care about heuristics are unaffected.
func (e *Engine) SetHeuristicSource(src HeuristicSource) {
	e.heuristics = src
}

// loadHeuristics tolerates a nil source or a read failure by returning no
// heuristics: the boost is a tie-break nicety, never a hard dependency.
func (e *Engine) loadHeuristics(ctx context.Context) []*memory.Heuristic {
	if e.heuristics == nil {
		return nil
	}
	hs, err := e.heuristics.ListHeuristics(ctx)
	if err != nil {
		e.log.V(1).Info("heuristic load failed, ranking proceeds without boost", "error", err.Error())
		return nil
	}
	return hs
}

// Request is the retrieve_relevant_context input.
type Request struct {
	QueryText string
	Context   memory.Context
	TaskType  memory.TaskType
	Since     time.Time
	Until     time.Time
	Limit     int
}

// Retrieve never propagates backend transient failures: an index
// failure falls back to the legacy scan, and an embedding-provider
// absence falls back to keyword matching, per §7.
func (e *Engine) Retrieve(ctx context.Context, req Request) ([]memory.Episode, error) {
	fp := Fingerprint(req.QueryText, req.Context.Domain, req.TaskType, req.Limit)
	if entry, ok := e.cache.Get(fp); ok {
		return entry.Results, nil
	}

	if e.idx == nil {
		results, err := e.LegacyScan(ctx, req)
		if err != nil {
			return nil, err
		}
		e.cache.Put(fp, req.Context.Domain, results, len(results)*256)
		return results, nil
	}

	candidateIDs := e.selectCandidates(req)
	if len(candidateIDs) == 0 {
		results, err := e.LegacyScan(ctx, req)
		if err != nil {
			return nil, err
		}
		e.cache.Put(fp, req.Context.Domain, results, len(results)*256)
		return results, nil
	}

	heuristics := e.loadHeuristics(ctx)
	scored := make([]Scored, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		ep, err := e.storage.GetEpisode(ctx, id)
		if err != nil {
			continue // tolerate a stale index entry pointing at an evicted episode
		}
		summary, _ := e.storage.GetSummary(ctx, id)
		score := e.combinedScore(req, ep, summary, heuristics)
		scored = append(scored, Scored{Episode: ep, Summary: summary, Score: score})
	}

	selected := MMR(scored, req.Limit, e.lambda)

	results := make([]memory.Episode, len(selected))
	for i, s := range selected {
		results[i] = *s.Episode
	}

	approxSize := 0
	for _, r := range results {
		approxSize += len(r.TaskDescription) + 256
	}
	e.cache.Put(fp, req.Context.Domain, results, approxSize)

	return results, nil
}

// selectCandidates queries the Spatiotemporal Index; if it is
// unavailable (nil) or errors, falls back to the legacy O(n) scan.
func (e *Engine) selectCandidates(req Request) []string {
	if e.idx == nil {
		return nil // caller's Retrieve loop will fall through to legacy scan below
	}
	return e.idx.Query(req.Context.Domain, req.TaskType, req.Since, req.Until)
}

// LegacyScan scans the full completed-episode population when the
// index path is unavailable, guaranteeing availability over latency.
func (e *Engine) LegacyScan(ctx context.Context, req Request) ([]memory.Episode, error) {
	e.log.Info("retrieval falling back to legacy scan path", "domain", req.Context.Domain)
	all, err := e.storage.ListEpisodes(ctx, memory.Filter{
		Domain:   req.Context.Domain,
		TaskType: req.TaskType,
		Status:   memory.StatusCompleted,
	})
	if err != nil {
		return nil, err
	}

	heuristics := e.loadHeuristics(ctx)
	scored := make([]Scored, 0, len(all))
	for _, ep := range all {
		summary, _ := e.storage.GetSummary(ctx, ep.ID)
		score := e.combinedScore(req, ep, summary, heuristics)
		scored = append(scored, Scored{Episode: ep, Summary: summary, Score: score})
	}
	selected := MMR(scored, req.Limit, e.lambda)
	results := make([]memory.Episode, len(selected))
	for i, s := range selected {
		results[i] = *s.Episode
	}
	return results, nil
}

// combinedScore implements §4.7 step 3's weighted formula:
// 0.3*domain + 0.2*task_type + 0.2*temporal_proximity + 0.3*text_similarity,
// plus the distilled-heuristic tie-break from §C.1.
func (e *Engine) combinedScore(req Request, ep *memory.Episode, summary *memory.Summary, heuristics []*memory.Heuristic) float64 {
	domainMatch := 0.0
	if req.Context.Domain != "" && req.Context.Domain == ep.Context.Domain {
		domainMatch = 1.0
	}
	taskTypeMatch := 0.0
	if req.TaskType != "" && req.TaskType == ep.TaskType {
		taskTypeMatch = 1.0
	}
	temporal := temporalProximity(req, ep)
	textSim := textSimilarity(req.QueryText, ep, summary)

	score := 0.3*domainMatch + 0.2*taskTypeMatch + 0.2*temporal + 0.3*textSim

	// recency tie-break, applied as a small additive nudge so equal
	// primary scores still order deterministically by freshness.
	recencyNudge := 1.0 / (1.0 + time.Since(ep.CreatedAt).Hours()/24/365)
	return score + recencyNudge*1e-6 + heuristicBoost(heuristics, ep)
}

// heuristicBoost adds a small, strictly bounded nudge (capped at 0.05, well
// below the weighted terms above) for episodes whose task description
// matches a distilled heuristic's condition, per §C.1.
func heuristicBoost(heuristics []*memory.Heuristic, ep *memory.Episode) float64 {
	const cap = 0.05
	total := 0.0
	for _, h := range heuristics {
		total += memory.KeywordOverlap(h.Condition, ep.TaskDescription) * h.Confidence * 0.01
	}
	if total > cap {
		total = cap
	}
	return total
}

func temporalProximity(req Request, ep *memory.Episode) float64 {
	ref := time.Now()
	if !req.Until.IsZero() {
		ref = req.Until
	}
	ageDays := math.Abs(ref.Sub(ep.CreatedAt).Hours() / 24)
	const halfLifeDays = 90.0
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

// textSimilarity always falls back to keyword overlap: no query embedding
// is produced on the retrieval path (only stored summaries carry one), so
// the embedding-vs-embedding comparison in §4.7 step 3 never runs here.
// MMR's own re-ranking pass does use cosine similarity over stored
// embeddings separately; this function is the candidate-scoring step only.
func textSimilarity(queryText string, ep *memory.Episode, summary *memory.Summary) float64 {
	if summary != nil && len(summary.Text) > 0 {
		return memory.KeywordOverlap(queryText, summary.Text)
	}
	return memory.KeywordOverlap(queryText, ep.TaskDescription)
}
