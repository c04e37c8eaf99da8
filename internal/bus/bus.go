// Package bus adapts the teacher's internal/nats client into the
// transport for the Pattern Extraction Queue: subject-based publish and
// queue-group worker subscription, backed by an embedded nats-server
// the same way cmd/cliairmonitor/main.go starts one in-process.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	natslib "github.com/selfmemory/memoryd/internal/nats"
)

// PatternQueue publishes and consumes PatternExtractionRequest messages
// over the memory.pattern.extract subject, queue-grouped so exactly one
// worker in the pool handles each episode id.
type PatternQueue struct {
	client     *natslib.Client
	queueGroup string
}

const defaultQueueGroup = "pattern-workers"

func NewPatternQueue(client *natslib.Client) *PatternQueue {
	return &PatternQueue{client: client, queueGroup: defaultQueueGroup}
}

// Enqueue publishes a completed episode id onto the pattern queue. NATS
// core pub/sub has no built-in backpressure, so bounded-queue and
// drop-oldest semantics are enforced by the subscriber side (see
// internal/patterns.Engine's bounded channel in front of the workers).
func (q *PatternQueue) Enqueue(episodeID string) error {
	req := natslib.PatternExtractionRequest{EpisodeID: episodeID, EnqueuedAt: time.Now()}
	if err := q.client.PublishJSON(natslib.SubjectPatternQueue, req); err != nil {
		return fmt.Errorf("failed to enqueue pattern extraction for %s: %w", episodeID, err)
	}
	return nil
}

// Subscribe registers a queue-group handler so multiple worker processes
// (or multiple calls within one process) load-balance episode ids.
func (q *PatternQueue) Subscribe(handler func(episodeID string)) error {
	_, err := q.client.QueueSubscribe(natslib.SubjectPatternQueue, q.queueGroup, func(msg *natslib.Message) {
		var req natslib.PatternExtractionRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		handler(req.EpisodeID)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to pattern queue: %w", err)
	}
	return nil
}

// PublishCompleted announces a durable admission on the fan-out subject
// for external observers. Nothing in this module subscribes to it; the
// Query Cache's domain invalidation is called directly by the admission
// observer in cmd/memoryd.
func (q *PatternQueue) PublishCompleted(episodeID, domain string) error {
	return q.client.PublishJSON(natslib.SubjectEpisodeCompleted, natslib.EpisodeCompletedEvent{
		EpisodeID: episodeID, Domain: domain, Timestamp: time.Now(),
	})
}

// PublishEvicted announces an eviction for operational visibility.
func (q *PatternQueue) PublishEvicted(episodeID, domain, reason string) error {
	return q.client.PublishJSON(natslib.SubjectEpisodeEvicted, natslib.EpisodeEvictedEvent{
		EpisodeID: episodeID, Domain: domain, Reason: reason, Timestamp: time.Now(),
	})
}

// PublishRepairNeeded announces that a cache-tier write or delete was
// deferred to the repair list after a successful Primary commit.
func (q *PatternQueue) PublishRepairNeeded(kind, id string) error {
	return q.client.PublishJSON(natslib.SubjectSyncRepairNeeded, natslib.SyncRepairEvent{
		EpisodeID: id, Kind: kind, Timestamp: time.Now(),
	})
}
