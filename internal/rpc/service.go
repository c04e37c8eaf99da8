package rpc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/selfmemory/memoryd/internal/memory"
	"github.com/selfmemory/memoryd/internal/retrieval"
)

// Lifecycle is the narrow surface Service needs from memory.Lifecycle,
// named locally so the façade can be tested against a fake.
type Lifecycle interface {
	StartEpisode(ctx context.Context, taskDescription string, episodeCtx memory.Context, taskType memory.TaskType) (string, error)
	LogStep(ctx context.Context, episodeID string, step memory.Step) error
	CompleteEpisode(ctx context.Context, episodeID string, outcome *memory.Outcome) (*memory.CompletionResult, error)
}

// Service implements the narrow contract methods named in spec.md §6.
// It holds no transport concerns; a JSON-RPC server wraps this (out of
// scope here).
type Service struct {
	lifecycle Lifecycle
	storage   memory.Storage
	retrieval *retrieval.Engine
	tools     []ToolDescription
}

func NewService(lifecycle Lifecycle, storage memory.Storage, engine *retrieval.Engine) *Service {
	return &Service{
		lifecycle: lifecycle,
		storage:   storage,
		retrieval: engine,
		tools:     defaultToolDescriptions(),
	}
}

func defaultToolDescriptions() []ToolDescription {
	return []ToolDescription{
		{Name: "start_episode", Summary: "Open a new episode for an in-progress task attempt."},
		{Name: "log_step", Summary: "Append one execution step to an in-flight episode."},
		{Name: "complete_episode", Summary: "Close an episode with its outcome and run the storage pipeline."},
		{Name: "get_episode", Summary: "Fetch a stored episode by id, with optional field projection."},
		{Name: "retrieve_relevant_context", Summary: "Retrieve prior episodes relevant to a query and context."},
		{Name: "describe_tools", Summary: "List available tool names."},
		{Name: "describe_tool", Summary: "Fetch the full schema for one tool."},
	}
}

func (s *Service) StartEpisode(ctx context.Context, p StartEpisodeParams) (*StartEpisodeResult, error) {
	id, err := s.lifecycle.StartEpisode(ctx, p.TaskDescription, p.Context, p.TaskType)
	if err != nil {
		return nil, err
	}
	return &StartEpisodeResult{EpisodeID: id}, nil
}

func (s *Service) LogStep(ctx context.Context, p LogStepParams) (*LogStepResult, error) {
	if err := s.lifecycle.LogStep(ctx, p.EpisodeID, p.Step); err != nil {
		return nil, err
	}
	return &LogStepResult{Accepted: true}, nil
}

func (s *Service) CompleteEpisode(ctx context.Context, p CompleteEpisodeParams) (*CompleteEpisodeResult, error) {
	outcome := p.Outcome
	res, err := s.lifecycle.CompleteEpisode(ctx, p.EpisodeID, &outcome)
	if err != nil {
		return nil, err
	}
	return &CompleteEpisodeResult{
		EpisodeID:  res.EpisodeID,
		Stored:     res.Stored,
		Reason:     res.Reason,
		EvictedIDs: res.EvictedIDs,
	}, nil
}

// GetEpisode returns the projected episode as a generic map so
// IncludeFields can prune nested dotted paths without a second
// serialization format (§9 design note: projection, not an alternative
// serialization).
func (s *Service) GetEpisode(ctx context.Context, p GetEpisodeParams) (map[string]any, error) {
	ep, err := s.storage.GetEpisode(ctx, p.EpisodeID)
	if err != nil {
		return nil, err
	}
	return project(ep, p.IncludeFields)
}

func (s *Service) RetrieveRelevantContext(ctx context.Context, p RetrieveContextParams) ([]map[string]any, error) {
	results, err := s.retrieval.Retrieve(ctx, retrieval.Request{
		QueryText: p.QueryText,
		Context:   p.Context,
		TaskType:  p.TaskType,
		Limit:     p.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(results))
	for i := range results {
		projected, err := project(&results[i], p.IncludeFields)
		if err != nil {
			continue
		}
		out = append(out, projected)
	}
	return out, nil
}

func (s *Service) DescribeTools() []string {
	names := make([]string, len(s.tools))
	for i, t := range s.tools {
		names[i] = t.Name
	}
	return names
}

func (s *Service) DescribeTool(name string) (*ToolDescription, bool) {
	for _, t := range s.tools {
		if t.Name == name {
			return &t, true
		}
	}
	return nil, false
}

// project marshals v to a generic map and, when fields is non-empty,
// prunes everything outside the requested dotted paths. An empty fields
// list returns all fields, preserving backwards compatibility (§6).
func project(v any, fields []string) (map[string]any, error) {
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var full map[string]any
	if err := json.Unmarshal(blob, &full); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return full, nil
	}

	pruned := make(map[string]any)
	for _, f := range fields {
		copyPath(full, pruned, strings.Split(f, "."))
	}
	return pruned, nil
}

// copyPath copies the value at the dotted path in src into dst,
// creating intermediate maps as needed.
func copyPath(src map[string]any, dst map[string]any, path []string) {
	if len(path) == 0 {
		return
	}
	key := path[0]
	val, ok := src[key]
	if !ok {
		return
	}
	if len(path) == 1 {
		dst[key] = val
		return
	}
	nested, ok := val.(map[string]any)
	if !ok {
		return
	}
	child, ok := dst[key].(map[string]any)
	if !ok {
		child = make(map[string]any)
		dst[key] = child
	}
	copyPath(nested, child, path[1:])
}
