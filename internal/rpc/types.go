// Package rpc defines the tool-style JSON-RPC contract types consumed
// by an external façade (the RPC server itself is out of scope; see
// spec.md §6). This package is the narrow surface that façade calls
// into Service for.
package rpc

import "github.com/selfmemory/memoryd/internal/memory"

// StartEpisodeParams is the start_episode request payload.
type StartEpisodeParams struct {
	TaskDescription string          `json:"task_description"`
	Context         memory.Context  `json:"context"`
	TaskType        memory.TaskType `json:"task_type"`
}

type StartEpisodeResult struct {
	EpisodeID string `json:"episode_id"`
}

// LogStepParams is the log_step request payload.
type LogStepParams struct {
	EpisodeID string      `json:"episode_id"`
	Step      memory.Step `json:"step"`
}

type LogStepResult struct {
	Accepted bool `json:"accepted"`
}

// CompleteEpisodeParams is the complete_episode request payload.
type CompleteEpisodeParams struct {
	EpisodeID string         `json:"episode_id"`
	Outcome   memory.Outcome `json:"outcome"`
}

type CompleteEpisodeResult struct {
	EpisodeID  string   `json:"episode_id"`
	Stored     bool     `json:"stored"`
	Reason     string   `json:"reason,omitempty"`
	EvictedIDs []string `json:"evicted_ids,omitempty"`
}

// GetEpisodeParams is the get_episode request payload.
type GetEpisodeParams struct {
	EpisodeID      string   `json:"episode_id"`
	IncludeFields  []string `json:"include_fields,omitempty"`
}

// RetrieveContextParams is the retrieve_relevant_context request payload.
type RetrieveContextParams struct {
	QueryText     string          `json:"query_text"`
	Context       memory.Context  `json:"context"`
	TaskType      memory.TaskType `json:"task_type,omitempty"`
	Limit         int             `json:"limit"`
	IncludeFields []string        `json:"include_fields,omitempty"`
}

// EpisodeRef is a compact episode reference (id and optional score).
// Service.RetrieveRelevantContext does not return it; it returns each
// result as a projected episode map.
type EpisodeRef struct {
	EpisodeID string  `json:"episode_id"`
	Score     float64 `json:"score,omitempty"`
}

// ToolDescription is the lazily-disclosed schema for one tool method.
// describe_tools() returns only Name for each entry; describe_tool(name)
// returns the full record (§6).
type ToolDescription struct {
	Name        string `json:"name"`
	Summary     string `json:"summary,omitempty"`
	ParamsShape string `json:"params_shape,omitempty"`
	ResultShape string `json:"result_shape,omitempty"`
}
