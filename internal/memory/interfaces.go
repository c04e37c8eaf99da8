package memory

import "context"

// Storage is the common capability set both tiers expose, per spec.md
// §4.4. Primary is durable and authoritative; Cache is fast and derived.
// Both are driven through this single interface so the Synchronizer and
// Capacity Manager never need to know which concrete backend they hold.
type Storage interface {
	PutEpisode(ctx context.Context, ep *Episode) error
	GetEpisode(ctx context.Context, id string) (*Episode, error)
	DeleteEpisode(ctx context.Context, id string) error
	ListEpisodes(ctx context.Context, filter Filter) ([]*Episode, error)

	PutSummary(ctx context.Context, s *Summary) error
	GetSummary(ctx context.Context, episodeID string) (*Summary, error)
	DeleteSummary(ctx context.Context, episodeID string) error

	PutPattern(ctx context.Context, p *Pattern) error
	GetPattern(ctx context.Context, id string) (*Pattern, error)
	// UpdatePatternAtomic applies f to the current record (or nil if absent)
	// and persists the result as a single serializable operation.
	UpdatePatternAtomic(ctx context.Context, id string, f func(*Pattern) (*Pattern, error)) error

	PutEmbedding(ctx context.Context, e *EmbeddingRecord) error
	GetEmbedding(ctx context.Context, episodeID string, dimension int) (*EmbeddingRecord, error)

	GetMeta(ctx context.Context, key string) (string, bool, error)
	PutMeta(ctx context.Context, key, value string) error

	// Count returns the maintained episode-count metadata when it has been
	// written; a backend without that metadata may compute the count
	// (SQLitePrimary runs a COUNT(*) query).
	Count(ctx context.Context) (int, error)

	Checksum(ctx context.Context, id string) (string, bool, error)

	Close() error
}

// EmbeddingProvider generates embeddings for text. A nil provider forces
// the keyword-overlap fallback throughout retrieval and summarization.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
