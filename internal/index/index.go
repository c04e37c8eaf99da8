// Package index implements the three-level Spatiotemporal Index over
// completed episodes: Domain -> TaskType -> TemporalCluster -> episode
// ids, with adaptive weekly/monthly/quarterly granularity (spec.md §4.6).
package index

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/selfmemory/memoryd/internal/memory"
)

// Granularity is the temporal-cluster bucket width.
type Granularity string

const (
	Weekly    Granularity = "weekly"
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
)

// densityThreshold is the bucket population above which re-bucketing to
// the next coarser granularity is triggered.
const densityThreshold = 500

type bucket struct {
	granularity Granularity
	start       time.Time
	ids         map[string]time.Time // episode id -> its timestamp, for removal and pruning
}

func bucketKey(start time.Time) string { return start.UTC().Format(time.RFC3339) }

type taskTypeNode struct {
	buckets map[string]*bucket // keyed by bucketKey(start)
}

type domainNode struct {
	taskTypes map[memory.TaskType]*taskTypeNode
}

// Index is the in-memory three-level index. All mutation holds the
// write lock briefly (§5: reader-writer discipline, many concurrent
// queries, brief exclusive inserts/removes).
type Index struct {
	mu      sync.RWMutex
	domains map[string]*domainNode
	// locations lets remove(id) find its bucket in O(1) without a scan.
	locations map[string]locator
}

type locator struct {
	domain   string
	taskType memory.TaskType
	key      string
	ts       time.Time
}

func New() *Index {
	return &Index{
		domains:   make(map[string]*domainNode),
		locations: make(map[string]locator),
	}
}

// Insert adds a completed episode to the index. O(log n) amortized via
// map access plus an occasional re-bucketing pass.
func (ix *Index) Insert(ep *memory.Episode) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.insertLocked(ep.Context.Domain, ep.TaskType, ep.ID, ep.CreatedAt)
}

func (ix *Index) insertLocked(domain string, taskType memory.TaskType, id string, ts time.Time) {
	dn, ok := ix.domains[domain]
	if !ok {
		dn = &domainNode{taskTypes: make(map[memory.TaskType]*taskTypeNode)}
		ix.domains[domain] = dn
	}
	tn, ok := dn.taskTypes[taskType]
	if !ok {
		tn = &taskTypeNode{buckets: make(map[string]*bucket)}
		dn.taskTypes[taskType] = tn
	}

	start := weekStart(ts)
	key := bucketKey(start)
	b, ok := tn.buckets[key]
	if !ok {
		b = &bucket{granularity: Weekly, start: start, ids: make(map[string]time.Time)}
		tn.buckets[key] = b
	}
	b.ids[id] = ts
	ix.locations[id] = locator{domain: domain, taskType: taskType, key: key, ts: ts}

	if len(b.ids) > densityThreshold {
		rebucket(tn, b, ix.locations)
	}
}

// rebucket merges an over-dense bucket into the next coarser
// granularity, re-keying by the new bucket start.
func rebucket(tn *taskTypeNode, b *bucket, locations map[string]locator) {
	var newStart func(time.Time) time.Time
	var newGran Granularity
	switch b.granularity {
	case Weekly:
		newStart, newGran = monthStart, Monthly
	case Monthly:
		newStart, newGran = quarterStart, Quarterly
	default:
		return // already coarsest
	}

	delete(tn.buckets, bucketKey(b.start))
	for id, ts := range b.ids {
		start := newStart(ts)
		key := bucketKey(start)
		nb, ok := tn.buckets[key]
		if !ok {
			nb = &bucket{granularity: newGran, start: start, ids: make(map[string]time.Time)}
			tn.buckets[key] = nb
		}
		nb.ids[id] = ts
		loc := locations[id]
		loc.key = key
		locations[id] = loc
	}
}

func weekStart(t time.Time) time.Time {
	t = t.UTC()
	wd := int(t.Weekday())
	return time.Date(t.Year(), t.Month(), t.Day()-wd, 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func quarterStart(t time.Time) time.Time {
	t = t.UTC()
	q := ((int(t.Month()) - 1) / 3) * 3
	return time.Date(t.Year(), time.Month(q+1), 1, 0, 0, 0, 0, time.UTC)
}

// Remove deletes an episode id, pruning any bucket left empty.
func (ix *Index) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	loc, ok := ix.locations[id]
	if !ok {
		return
	}
	delete(ix.locations, id)

	dn, ok := ix.domains[loc.domain]
	if !ok {
		return
	}
	tn, ok := dn.taskTypes[loc.taskType]
	if !ok {
		return
	}
	b, ok := tn.buckets[loc.key]
	if !ok {
		return
	}
	delete(b.ids, id)
	if len(b.ids) == 0 {
		delete(tn.buckets, loc.key)
	}
	if len(tn.buckets) == 0 {
		delete(dn.taskTypes, loc.taskType)
	}
	if len(dn.taskTypes) == 0 {
		delete(ix.domains, loc.domain)
	}
}

// Query returns candidate episode ids for an optional (domain, taskType,
// time range). O(log n) when domain is given, O(k) in the candidate
// count, matching §4.6.
func (ix *Index) Query(domain string, taskType memory.TaskType, since, until time.Time) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out []string
	domains := []string{domain}
	if domain == "" {
		domains = domains[:0]
		for d := range ix.domains {
			domains = append(domains, d)
		}
	}

	for _, d := range domains {
		dn, ok := ix.domains[d]
		if !ok {
			continue
		}
		taskTypes := []memory.TaskType{taskType}
		if taskType == "" {
			taskTypes = taskTypes[:0]
			for tt := range dn.taskTypes {
				taskTypes = append(taskTypes, tt)
			}
		}
		for _, tt := range taskTypes {
			tn, ok := dn.taskTypes[tt]
			if !ok {
				continue
			}
			for _, b := range tn.buckets {
				if !since.IsZero() && b.start.Before(weekStart(since)) && b.granularity == Weekly {
					continue
				}
				for id, ts := range b.ids {
					if !since.IsZero() && ts.Before(since) {
						continue
					}
					if !until.IsZero() && ts.After(until) {
						continue
					}
					out = append(out, id)
				}
			}
		}
	}
	sort.Strings(out)
	return out
}

// Count reports the number of indexed episode ids, used by tests and by
// health diagnostics.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.locations)
}

// Rebuild repopulates the index from the Primary store in bounded
// chunks, per §4.6's "derivable from the episode store" guarantee.
func Rebuild(ctx context.Context, primary memory.Storage, chunkSize int) (*Index, error) {
	ix := New()
	offset := 0
	type pager interface {
		ListEpisodeIDsInRange(ctx context.Context, offset, limit int) ([]*memory.Episode, error)
	}
	p, ok := primary.(pager)
	if !ok {
		// fall back to a single bounded ListEpisodes call if the backend
		// doesn't support paged streaming.
		eps, err := primary.ListEpisodes(ctx, memory.Filter{Status: memory.StatusCompleted, Limit: chunkSize})
		if err != nil {
			return nil, err
		}
		for _, ep := range eps {
			ix.Insert(ep)
		}
		return ix, nil
	}

	for {
		select {
		case <-ctx.Done():
			return ix, ctx.Err()
		default:
		}
		eps, err := p.ListEpisodeIDsInRange(ctx, offset, chunkSize)
		if err != nil {
			return nil, err
		}
		if len(eps) == 0 {
			break
		}
		for _, ep := range eps {
			ix.Insert(ep)
		}
		offset += len(eps)
		if len(eps) < chunkSize {
			break
		}
	}
	return ix, nil
}
