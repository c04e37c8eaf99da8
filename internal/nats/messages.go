package nats

import "time"

// Subject pattern constants for the memory engine's NATS messaging.
const (
	// SubjectPatternQueue is the queue-group subject completed episodes
	// are published to for asynchronous pattern extraction (§4.8).
	SubjectPatternQueue = "memory.pattern.extract"

	// SubjectEpisodeCompleted is a fan-out notification published
	// whenever an episode is durably admitted, independent of the
	// pattern-extraction queue group.
	SubjectEpisodeCompleted = "memory.episode.completed"

	// SubjectEpisodeEvicted is published when the Capacity Manager
	// evicts an episode, for operational visibility. The Spatiotemporal
	// Index and Query Cache are updated synchronously on the admit path,
	// not through this subject.
	SubjectEpisodeEvicted = "memory.episode.evicted"

	// SubjectSyncRepairNeeded is published when a write-through commit
	// queues a repair-list entry, for operational visibility.
	SubjectSyncRepairNeeded = "memory.sync.repair"
)

// PatternExtractionRequest is the payload enqueued onto the pattern
// extraction queue group; it owns only the episode identifier, never a
// reference into the live episode record (§9 design note).
type PatternExtractionRequest struct {
	EpisodeID   string    `json:"episode_id"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// EpisodeCompletedEvent is the fan-out notification for a durably
// admitted episode.
type EpisodeCompletedEvent struct {
	EpisodeID string    `json:"episode_id"`
	Domain    string    `json:"domain"`
	Timestamp time.Time `json:"timestamp"`
}

// EpisodeEvictedEvent is published for each episode id evicted by the
// Capacity Manager.
type EpisodeEvictedEvent struct {
	EpisodeID string    `json:"episode_id"`
	Domain    string    `json:"domain"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncRepairEvent is published whenever a cache write is deferred to the
// repair list after a successful Primary commit.
type SyncRepairEvent struct {
	EpisodeID string    `json:"episode_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}
