package memory

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/go-logr/logr"

	"github.com/selfmemory/memoryd/internal/memerr"
)

// PrimaryStore is the durable, authoritative side the Synchronizer
// writes first: the full Storage interface plus the count-metadata and
// repair-list operations that only the Primary tier provides.
type PrimaryStore interface {
	Storage
	SetCount(ctx context.Context, n int) error
	QueueRepair(ctx context.Context, kind, id string) error
	DrainRepairList(ctx context.Context, limit int) ([]string, error)
	ClearRepair(ctx context.Context, id string) error
}

// RepairNotifier is told when a cache-tier write or delete failed and a
// repair was queued, so operational consumers (the NATS fan-out in
// cmd/memoryd) can observe drift without polling the repair list.
type RepairNotifier interface {
	NotifyRepairNeeded(kind, id string)
}

// RepairNotifierFunc adapts a plain function to RepairNotifier, the same
// adapter shape as http.HandlerFunc.
type RepairNotifierFunc func(kind, id string)

func (f RepairNotifierFunc) NotifyRepairNeeded(kind, id string) { f(kind, id) }

// Synchronizer maintains eventual equivalence between Primary and
// Cache via write-through admission plus a periodic repair pass (§4.5).
type Synchronizer struct {
	primary        PrimaryStore
	cache          Storage
	log            logr.Logger
	maxRetries     int
	syncInterval   time.Duration
	repairNotifier RepairNotifier
}

func NewSynchronizer(primary PrimaryStore, cache Storage, syncInterval time.Duration, log logr.Logger) *Synchronizer {
	return &Synchronizer{
		primary:      primary,
		cache:        cache,
		log:          log,
		maxRetries:   5,
		syncInterval: syncInterval,
	}
}

// SetRepairNotifier wires the optional repair-queued hook. A nil notifier
// (the default) skips the notification.
func (s *Synchronizer) SetRepairNotifier(notifier RepairNotifier) {
	s.repairNotifier = notifier
}

// WriteThrough performs the two-phase write-through sequence: commit
// Primary first (authoritative); a Cache failure after a Primary success
// is queued for repair rather than surfaced.
func (s *Synchronizer) WriteThrough(ctx context.Context, ep *Episode, summary *Summary) error {
	select {
	case <-ctx.Done():
		return memerr.Cancelled("WriteThrough", ep.ID)
	default:
	}

	if err := s.primary.PutEpisode(ctx, ep); err != nil {
		if memerr.Retriable(err) {
			if retryErr := s.retryPrimaryEpisode(ctx, ep); retryErr != nil {
				return memerr.CommitFailed("WriteThrough", ep.ID, retryErr)
			}
		} else {
			return memerr.CommitFailed("WriteThrough", ep.ID, err)
		}
	}
	if summary != nil {
		if err := s.primary.PutSummary(ctx, summary); err != nil {
			return memerr.CommitFailed("WriteThrough", ep.ID, err)
		}
	}

	select {
	case <-ctx.Done():
		return memerr.Cancelled("WriteThrough", ep.ID)
	default:
	}

	if err := s.cache.PutEpisode(ctx, ep); err != nil {
		s.log.V(1).Info("cache write failed after primary commit, queuing repair",
			"episode_id", ep.ID, "error", err.Error())
		_ = s.primary.QueueRepair(ctx, "episode", ep.ID)
		s.notifyRepair("episode", ep.ID)
		return nil
	}
	if summary != nil {
		if err := s.cache.PutSummary(ctx, summary); err != nil {
			s.log.V(1).Info("cache summary write failed after primary commit, queuing repair",
				"episode_id", ep.ID, "error", err.Error())
			_ = s.primary.QueueRepair(ctx, "episode", ep.ID)
			s.notifyRepair("episode", ep.ID)
		}
	}
	return nil
}

func (s *Synchronizer) notifyRepair(kind, id string) {
	if s.repairNotifier != nil {
		s.repairNotifier.NotifyRepairNeeded(kind, id)
	}
}

func (s *Synchronizer) retryPrimaryEpisode(ctx context.Context, ep *Episode) error {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		backoff := time.Duration(math.Pow(2, float64(attempt))) * 50 * time.Millisecond
		jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		if err := s.primary.PutEpisode(ctx, ep); err == nil {
			return nil
		} else {
			lastErr = err
			if !memerr.Retriable(err) {
				return err
			}
		}
	}
	return lastErr
}

// EvictEpisode deletes an episode and its summary from both tiers.
func (s *Synchronizer) EvictEpisode(ctx context.Context, id string) error {
	if err := s.primary.DeleteSummary(ctx, id); err != nil {
		if k, ok := memerr.KindOf(err); !ok || k != memerr.KindNotFound {
			return memerr.CommitFailed("EvictEpisode", id, err)
		}
	}
	if err := s.primary.DeleteEpisode(ctx, id); err != nil {
		if k, ok := memerr.KindOf(err); !ok || k != memerr.KindNotFound {
			return memerr.CommitFailed("EvictEpisode", id, err)
		}
	}
	if err := s.cache.DeleteSummary(ctx, id); err != nil {
		s.log.V(1).Info("cache summary eviction failed", "episode_id", id, "error", err.Error())
	}
	if err := s.cache.DeleteEpisode(ctx, id); err != nil {
		s.log.V(1).Info("cache episode eviction failed, queuing repair", "episode_id", id, "error", err.Error())
		_ = s.primary.QueueRepair(ctx, "episode", id)
		s.notifyRepair("episode", id)
	}
	return nil
}

// RunSyncPass reconciles Primary and Cache in one bounded batch, first
// draining the repair list, then comparing checksums for the id range.
// It is meant to be called on a ticker (see cmd/memoryd/main.go).
func (s *Synchronizer) RunSyncPass(ctx context.Context, batchSize int) error {
	repairIDs, err := s.primary.DrainRepairList(ctx, batchSize)
	if err != nil {
		return err
	}
	for _, id := range repairIDs {
		select {
		case <-ctx.Done():
			return memerr.Cancelled("RunSyncPass", "")
		default:
		}
		if err := s.repairOne(ctx, id); err != nil {
			s.log.V(1).Info("repair of queued item failed, will retry next pass", "episode_id", id, "error", err.Error())
			continue
		}
		_ = s.primary.ClearRepair(ctx, id)
	}

	episodes, err := s.primary.ListEpisodes(ctx, Filter{Status: StatusCompleted, Limit: batchSize})
	if err != nil {
		return err
	}
	for _, ep := range episodes {
		select {
		case <-ctx.Done():
			return memerr.Cancelled("RunSyncPass", "")
		default:
		}
		s.reconcileOne(ctx, ep.ID)
	}
	return nil
}

func (s *Synchronizer) repairOne(ctx context.Context, id string) error {
	ep, err := s.primary.GetEpisode(ctx, id)
	if err != nil {
		return err
	}
	if err := s.cache.PutEpisode(ctx, ep); err != nil {
		return err
	}
	if sm, err := s.primary.GetSummary(ctx, id); err == nil {
		_ = s.cache.PutSummary(ctx, sm)
	}
	return nil
}

// reconcileOne implements the (Primary, Cache) presence/checksum matrix
// from §4.5. Primary wins on divergence for completed episodes.
func (s *Synchronizer) reconcileOne(ctx context.Context, id string) {
	primarySum, primaryHas, err := s.primary.Checksum(ctx, id)
	if err != nil {
		s.log.V(1).Info("checksum lookup failed during sync pass", "episode_id", id, "error", err.Error())
		return
	}
	cacheSum, cacheHas, err := s.cache.Checksum(ctx, id)
	if err != nil {
		s.log.V(1).Info("cache checksum lookup failed during sync pass", "episode_id", id, "error", err.Error())
		return
	}

	switch {
	case primaryHas && cacheHas && primarySum == cacheSum:
		return
	case primaryHas && cacheHas: // differ: primary wins for completed episodes
		ep, err := s.primary.GetEpisode(ctx, id)
		if err != nil {
			return
		}
		_ = s.cache.PutEpisode(ctx, ep)
	case primaryHas && !cacheHas:
		ep, err := s.primary.GetEpisode(ctx, id)
		if err != nil {
			return
		}
		_ = s.cache.PutEpisode(ctx, ep)
	case !primaryHas && cacheHas: // recovery from a partial crash
		ep, err := s.cache.GetEpisode(ctx, id)
		if err != nil {
			return
		}
		_ = s.primary.PutEpisode(ctx, ep)
	default:
		s.log.V(1).Info("inconsistency marker: episode absent from both tiers", "episode_id", id)
	}
}
