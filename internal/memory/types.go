// Package memory implements the self-learning episodic memory engine:
// the episode lifecycle, the pre-storage pipeline, capacity-bounded
// admission, and the dual-tier durable/cache storage beneath it.
package memory

import "time"

// SchemaVersion is the current on-disk record version. Readers migrate
// older versions forward and refuse anything newer (memerr.UnsupportedVersion).
const SchemaVersion = 1

// Size bounds (spec.md §4.4), enforced by the storage tiers' Put methods
// when a record is written; reads do not re-check them.
const (
	MaxTaskDescriptionBytes = 5 * 1024
	MaxEpisodeBytes         = 1 * 1024 * 1024
	MaxPatternBytes         = 1 * 1024 * 1024
	MaxSummaryBytes         = 100 * 1024
	MaxStepBlobBytes        = 64 * 1024
	MaxInlineSteps          = 100
)

// Status is the episode lifecycle state.
type Status string

const (
	StatusInFlight  Status = "InFlight"
	StatusCompleted Status = "Completed"
	StatusRejected  Status = "Rejected"
)

// TaskType enumerates the kinds of task an episode can record.
type TaskType string

const (
	TaskCodeGeneration TaskType = "code_generation"
	TaskDebugging      TaskType = "debugging"
	TaskAnalysis       TaskType = "analysis"
	TaskOther          TaskType = "other"
)

// Context is the immutable context metadata attached at episode creation.
type Context struct {
	Domain     string            `json:"domain"`
	Language   string            `json:"language"`
	Complexity string            `json:"complexity"`
	Tags       []string          `json:"tags,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Verdict is the tagged outcome variant attached at completion.
type Verdict string

const (
	VerdictSuccess        Verdict = "Success"
	VerdictFailure        Verdict = "Failure"
	VerdictPartialSuccess Verdict = "PartialSuccess"
)

// Outcome carries the completion result for an episode.
type Outcome struct {
	Verdict           Verdict  `json:"verdict"`
	ArtifactRefs      []string `json:"artifact_refs,omitempty"`
	FailureReason     string   `json:"failure_reason,omitempty"`
	PartialArtifacts  []string `json:"partial_artifacts,omitempty"`
}

// Step is one immutable, append-only execution step within an episode.
type Step struct {
	Seq       int       `json:"seq"`
	ToolID    string    `json:"tool_id"`
	Params    []byte    `json:"params,omitempty"`
	Result    []byte    `json:"result,omitempty"`
	LatencyMs int64     `json:"latency_ms"`
	Tokens    int64     `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// DecisionPoint is a condition->action pair observed in the step sequence.
type DecisionPoint struct {
	Condition string `json:"condition"`
	Action    string `json:"action"`
	AtStep    int    `json:"at_step"`
}

// ErrorRecovery is an error-step -> recovery-step transition.
type ErrorRecovery struct {
	ErrorStep    int    `json:"error_step"`
	RecoveryStep int    `json:"recovery_step"`
	ErrorTool    string `json:"error_tool"`
	RecoveryTool string `json:"recovery_tool"`
}

// SalientFeatures is the distilled "what mattered" of an episode, per §3.
type SalientFeatures struct {
	DecisionPoints []DecisionPoint `json:"decision_points,omitempty"`
	ToolSequences  [][]string      `json:"tool_sequences,omitempty"`
	ErrorRecoveries []ErrorRecovery `json:"error_recoveries,omitempty"`
	ContextMarkers []string        `json:"context_markers,omitempty"`
}

// Summary is the compressed semantic representation of an episode.
type Summary struct {
	EpisodeID     string    `json:"episode_id"`
	Text          string    `json:"text"`
	KeyConcepts   []string  `json:"key_concepts"`
	CriticalSteps []int     `json:"critical_steps"`
	Embedding     []float32 `json:"embedding,omitempty"`
	SchemaVersion int       `json:"schema_version"`
}

// Episode is the atomic unit of experience described in spec.md §3.
type Episode struct {
	ID              string           `json:"id"`
	TaskDescription string           `json:"task_description"`
	Context         Context          `json:"context"`
	TaskType        TaskType         `json:"task_type"`
	CreatedAt       time.Time        `json:"created_at"`
	SchemaVersion   int              `json:"schema_version"`

	Steps  []Step `json:"steps"`
	Status Status `json:"status"`

	Outcome        *Outcome         `json:"outcome,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Reward         *float64         `json:"reward,omitempty"`
	Reflection     string           `json:"reflection,omitempty"`
	Salient        *SalientFeatures `json:"salient,omitempty"`
	LastAccessedAt time.Time        `json:"last_accessed_at"`
	QualityScore   float64          `json:"quality_score,omitempty"`
}

// PatternKind tags the variant of a recurring behavior, per §3.
type PatternKind string

const (
	PatternToolSequence  PatternKind = "ToolSequence"
	PatternDecisionPoint PatternKind = "DecisionPoint"
	PatternErrorRecovery PatternKind = "ErrorRecovery"
	PatternContext       PatternKind = "ContextPattern"
)

// Pattern is a recurring behavior learned across episodes.
type Pattern struct {
	ID                  string      `json:"id"`
	Kind                PatternKind `json:"kind"`
	Payload             []byte      `json:"payload"` // JSON-encoded, shape depends on Kind
	Confidence          float64     `json:"confidence"`
	Frequency           int         `json:"frequency"`
	SuccessRate         float64     `json:"success_rate"`
	SupportingEpisodes  []string    `json:"supporting_episodes"` // weak references
	FirstSeen           time.Time   `json:"first_seen"`
	LastUsed            time.Time   `json:"last_used"`
	SchemaVersion       int         `json:"schema_version"`
}

// Heuristic is a condition-action rule distilled from one or more patterns.
type Heuristic struct {
	ID         string  `json:"id"`
	Condition  string  `json:"condition"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	SourcePatternIDs []string `json:"source_pattern_ids"`
}

// EmbeddingRecord is a per-(episode,dimension) embedding, keyed for
// multi-model routing per spec.md §6. Routing policy stays external.
type EmbeddingRecord struct {
	EpisodeID string    `json:"episode_id"`
	Dimension int       `json:"dimension"`
	Vector    []float32 `json:"vector"`
}

// IndexEntry is a derived (domain, task type, temporal cluster, id) tuple.
type IndexEntry struct {
	Domain      string
	TaskType    TaskType
	Granularity string // weekly | monthly | quarterly
	EpisodeID   string
	Timestamp   time.Time
}

// Filter scopes episode queries against the Primary store.
type Filter struct {
	Domain    string
	TaskType  TaskType
	Tags      []string
	Since     time.Time
	Until     time.Time
	Status    Status
	Limit     int
}
