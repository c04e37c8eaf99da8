package memory

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/selfmemory/memoryd/internal/memerr"
	"github.com/selfmemory/memoryd/internal/obslog"
)

// inflightEpisode is the mutable, single-writer record held while an
// episode is being built. Access is guarded by its own mutex so the
// Lifecycle Manager never needs a global lock (§5).
type inflightEpisode struct {
	mu       sync.Mutex
	episode  *Episode
	lastSeen time.Time
}

// Lifecycle drives the Created -> InFlight -> (Completed | Rejected)
// state machine and the completion call path described in §4.1.
type Lifecycle struct {
	mu       sync.RWMutex
	inflight map[string]*inflightEpisode

	capacity        *Capacity
	embeddings      EmbeddingProvider
	qualityWeights  QualityWeights
	qualityThresh   float64
	summarize       bool
	idleTimeout     time.Duration
	log             logr.Logger
	onCompleted     func(episodeID string) // pattern-queue enqueue hook
}

type LifecycleOptions struct {
	Capacity       *Capacity
	Embeddings     EmbeddingProvider
	QualityWeights QualityWeights
	QualityThresh  float64
	Summarize      bool
	IdleTimeout    time.Duration
	Log            logr.Logger
	OnCompleted    func(episodeID string)
}

func NewLifecycle(opts LifecycleOptions) *Lifecycle {
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	if opts.QualityThresh == 0 {
		opts.QualityThresh = 0.7
	}
	return &Lifecycle{
		inflight:       make(map[string]*inflightEpisode),
		capacity:       opts.Capacity,
		embeddings:     opts.Embeddings,
		qualityWeights: opts.QualityWeights,
		qualityThresh:  opts.QualityThresh,
		summarize:      opts.Summarize,
		idleTimeout:    opts.IdleTimeout,
		log:            opts.Log,
		onCompleted:    opts.OnCompleted,
	}
}

// StartEpisode validates input bounds, assigns an id, and inserts the
// episode into the in-flight table.
func (l *Lifecycle) StartEpisode(ctx context.Context, taskDescription string, episodeCtx Context, taskType TaskType) (string, error) {
	if len(taskDescription) == 0 || len(taskDescription) > MaxTaskDescriptionBytes {
		return "", memerr.Validation("StartEpisode", errBoundsViolation("task_description"))
	}
	switch taskType {
	case TaskCodeGeneration, TaskDebugging, TaskAnalysis, TaskOther:
	default:
		return "", memerr.Validation("StartEpisode", errBoundsViolation("task_type"))
	}

	id := uuid.NewString()
	now := time.Now()
	ep := &Episode{
		ID:              id,
		TaskDescription: taskDescription,
		Context:         episodeCtx,
		TaskType:        taskType,
		CreatedAt:       now,
		SchemaVersion:   SchemaVersion,
		Status:          StatusInFlight,
		LastAccessedAt:  now,
	}

	l.mu.Lock()
	l.inflight[id] = &inflightEpisode{episode: ep, lastSeen: now}
	l.mu.Unlock()

	return id, nil
}

type boundsError struct{ field string }

func (e boundsError) Error() string { return "bounds violation: " + e.field }
func errBoundsViolation(field string) error { return boundsError{field} }

// LogStep appends a step to an in-flight episode. Steps are rejected if
// their blobs exceed the per-step size limit.
func (l *Lifecycle) LogStep(ctx context.Context, episodeID string, step Step) error {
	l.mu.RLock()
	rec, ok := l.inflight[episodeID]
	l.mu.RUnlock()
	if !ok {
		return memerr.New(memerr.KindUnknown, "LogStep", episodeID, nil)
	}

	if len(step.Params) > MaxStepBlobBytes || len(step.Result) > MaxStepBlobBytes {
		return memerr.DataTooLarge("LogStep", errBoundsViolation("step_blob"))
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.episode.Status != StatusInFlight {
		return memerr.InvalidState("LogStep", episodeID)
	}
	step.Seq = len(rec.episode.Steps) + 1
	if step.Timestamp.IsZero() {
		step.Timestamp = time.Now()
	}
	rec.episode.Steps = append(rec.episode.Steps, step)
	rec.lastSeen = time.Now()
	return nil
}

// CompletionResult mirrors the complete_episode RPC's response shape.
type CompletionResult struct {
	EpisodeID  string
	Stored     bool
	Reason     string
	EvictedIDs []string
}

// CompleteEpisode runs the full completion sequence from §4.1: move out
// of in-flight, score reward, run the pre-storage pipeline, and (if
// accepted) hand off to the Capacity Manager for durable admission.
func (l *Lifecycle) CompleteEpisode(ctx context.Context, episodeID string, outcome *Outcome) (*CompletionResult, error) {
	l.mu.Lock()
	rec, ok := l.inflight[episodeID]
	if ok {
		delete(l.inflight, episodeID)
	}
	l.mu.Unlock()
	if !ok {
		// Not in-flight: either this id never existed, or it was already
		// carried to a terminal state by a prior call. §8's idempotence
		// law requires the latter to report InvalidState, not NotFound.
		if l.capacity != nil {
			if existing, err := l.capacity.sync.primary.GetEpisode(ctx, episodeID); err == nil && existing != nil {
				return nil, memerr.InvalidState("CompleteEpisode", episodeID)
			}
		}
		return nil, memerr.NotFound("CompleteEpisode", episodeID)
	}

	rec.mu.Lock()
	ep := rec.episode
	rec.mu.Unlock()

	if ep.Status != StatusInFlight {
		return nil, memerr.InvalidState("CompleteEpisode", episodeID)
	}

	now := time.Now()
	ep.Outcome = outcome
	ep.CompletedAt = &now
	ep.LastAccessedAt = now

	prior := priorStats{}
	if l.capacity != nil {
		peers, err := l.capacity.sync.primary.ListEpisodes(ctx, Filter{TaskType: ep.TaskType, Status: StatusCompleted, Limit: 50})
		if err == nil && len(peers) > 0 {
			for _, p := range peers {
				for _, s := range p.Steps {
					prior.AvgLatencyMs += float64(s.LatencyMs)
					prior.AvgTokens += float64(s.Tokens)
				}
			}
			prior.AvgLatencyMs /= float64(len(peers))
			prior.AvgTokens /= float64(len(peers))
		}
	}
	reward := ScoreReward(ep, requestedTools(ep.Context), prior)
	ep.Reward = &reward
	ep.Reflection = Reflect(ep, reward)

	quality := AssessQuality(ep, l.qualityWeights)
	ep.QualityScore = quality.Weighted

	if quality.Weighted < l.qualityThresh {
		ep.Status = StatusRejected
		obslog.Rejection(l.log, episodeID, quality.Weighted, l.qualityThresh, FailingSubScores(quality))
		return &CompletionResult{EpisodeID: episodeID, Stored: false, Reason: "quality_below_threshold"}, nil
	}

	ep.Status = StatusCompleted
	ep.Salient = ExtractSalientFeatures(ep)

	var summary *Summary
	if l.summarize {
		summary = Summarize(ctx, ep, l.embeddings, l.log)
	}

	evicted, err := l.capacity.Admit(ctx, ep, summary)
	if err != nil {
		return nil, err
	}

	if l.onCompleted != nil {
		l.onCompleted(episodeID)
	}

	return &CompletionResult{EpisodeID: episodeID, Stored: true, EvictedIDs: evicted}, nil
}

func requestedTools(c Context) []string {
	if c.Extra == nil {
		return nil
	}
	if v, ok := c.Extra["requested_tools"]; ok && v != "" {
		return splitComma(v)
	}
	return nil
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// ReapIdle force-closes in-flight episodes that have seen no activity
// for longer than the configured idle bound, per §4.1's policy.
func (l *Lifecycle) ReapIdle(ctx context.Context) []string {
	now := time.Now()
	var stale []string

	l.mu.RLock()
	for id, rec := range l.inflight {
		rec.mu.Lock()
		idle := now.Sub(rec.lastSeen) > l.idleTimeout
		rec.mu.Unlock()
		if idle {
			stale = append(stale, id)
		}
	}
	l.mu.RUnlock()

	for _, id := range stale {
		_, _ = l.CompleteEpisode(ctx, id, &Outcome{Verdict: VerdictFailure, FailureReason: "timeout"})
	}
	return stale
}
