package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/selfmemory/memoryd/internal/memerr"
)

// AdmissionObserver is notified synchronously when an episode crosses an
// admission-or-eviction boundary, so side tables that aren't part of the
// Storage interface itself (the Spatiotemporal Index, the Query Cache,
// operational fan-out) stay consistent with Primary/Cache without Capacity
// needing to know any of their concrete types (§4.1, §4.6).
type AdmissionObserver interface {
	Admitted(ep *Episode)
	Evicted(ep *Episode)
}

// Capacity enforces max_episodes via evict-then-insert admission,
// composed atomically with the Synchronizer (§4.3).
type Capacity struct {
	sync        *Synchronizer
	maxEpisodes *int
	policy      EvictionPolicy
	observer    AdmissionObserver
}

type EvictionPolicy string

const (
	EvictionLRU               EvictionPolicy = "LRU"
	EvictionRelevanceWeighted EvictionPolicy = "RelevanceWeighted"
)

func NewCapacity(sync *Synchronizer, maxEpisodes *int, policy EvictionPolicy) *Capacity {
	if policy == "" {
		policy = EvictionRelevanceWeighted
	}
	return &Capacity{sync: sync, maxEpisodes: maxEpisodes, policy: policy}
}

// SetObserver wires a post-admission/eviction hook. A nil observer (the
// default) simply skips the notification, the same nil-safe shape as
// EmbeddingProvider elsewhere in this package.
func (c *Capacity) SetObserver(observer AdmissionObserver) {
	c.observer = observer
}

// Admit runs the full evict-then-insert sequence and returns the ids of
// any episodes evicted to make room.
func (c *Capacity) Admit(ctx context.Context, ep *Episode, summary *Summary) ([]string, error) {
	if c.maxEpisodes == nil {
		if err := c.sync.WriteThrough(ctx, ep, summary); err != nil {
			return nil, err
		}
		if c.observer != nil {
			c.observer.Admitted(ep)
		}
		return nil, nil
	}

	limit := *c.maxEpisodes
	count, err := c.sync.primary.Count(ctx)
	if err != nil {
		return nil, err
	}

	var evicted []string
	if count >= limit {
		need := count - limit + 1
		victims, err := c.selectVictims(ctx, need)
		if err != nil {
			return nil, err
		}
		for _, v := range victims {
			if err := c.sync.EvictEpisode(ctx, v.ID); err != nil {
				return nil, err
			}
			if c.observer != nil {
				c.observer.Evicted(v)
			}
			evicted = append(evicted, v.ID)
		}
	}

	if err := c.sync.WriteThrough(ctx, ep, summary); err != nil {
		return evicted, err
	}
	if c.observer != nil {
		c.observer.Admitted(ep)
	}

	newCount := count - len(evicted) + 1
	if err := c.sync.primary.SetCount(ctx, newCount); err != nil {
		return evicted, memerr.Unavailable("Admit", fmt.Errorf("failed to update episode count metadata: %w", err))
	}
	return evicted, nil
}

// selectVictims picks `need` episodes to evict according to the
// configured policy. Ties are broken older-first per §4.3. The full
// episode (not just its id) is returned so callers can propagate the
// domain to index removal and cache invalidation.
func (c *Capacity) selectVictims(ctx context.Context, need int) ([]*Episode, error) {
	all, err := c.sync.primary.ListEpisodes(ctx, Filter{Status: StatusCompleted})
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	switch c.policy {
	case EvictionLRU:
		sort.Slice(all, func(i, j int) bool {
			if !all[i].LastAccessedAt.Equal(all[j].LastAccessedAt) {
				return all[i].LastAccessedAt.Before(all[j].LastAccessedAt)
			}
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		})
	default: // RelevanceWeighted
		now := time.Now()
		sort.Slice(all, func(i, j int) bool {
			ri := relevance(all[i], now)
			rj := relevance(all[j], now)
			if ri != rj {
				return ri < rj
			}
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		})
	}

	if need > len(all) {
		need = len(all)
	}
	return all[:need], nil
}

// relevance computes 0.7*quality + 0.3*recency with an exponential age
// decay (half-life of 30 days), per §4.3.
func relevance(ep *Episode, now time.Time) float64 {
	const halfLifeDays = 30.0
	ageDays := now.Sub(ep.CreatedAt).Hours() / 24
	recency := math.Exp(-math.Ln2 * ageDays / halfLifeDays)
	return 0.7*ep.QualityScore + 0.3*recency
}
