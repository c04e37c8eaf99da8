package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfmemory/memoryd/internal/memory"
)

type fakeLifecycle struct {
	startID    string
	startErr   error
	logErr     error
	completeRes *memory.CompletionResult
	completeErr error
	lastStep   memory.Step
}

func (f *fakeLifecycle) StartEpisode(ctx context.Context, taskDescription string, episodeCtx memory.Context, taskType memory.TaskType) (string, error) {
	return f.startID, f.startErr
}

func (f *fakeLifecycle) LogStep(ctx context.Context, episodeID string, step memory.Step) error {
	f.lastStep = step
	return f.logErr
}

func (f *fakeLifecycle) CompleteEpisode(ctx context.Context, episodeID string, outcome *memory.Outcome) (*memory.CompletionResult, error) {
	return f.completeRes, f.completeErr
}

func TestService_StartEpisodeReturnsLifecycleID(t *testing.T) {
	s := &Service{lifecycle: &fakeLifecycle{startID: "ep-1"}}
	res, err := s.StartEpisode(context.Background(), StartEpisodeParams{TaskDescription: "task"})
	require.NoError(t, err)
	assert.Equal(t, "ep-1", res.EpisodeID)
}

func TestService_LogStepForwardsStep(t *testing.T) {
	fl := &fakeLifecycle{}
	s := &Service{lifecycle: fl}
	res, err := s.LogStep(context.Background(), LogStepParams{EpisodeID: "ep-1", Step: memory.Step{ToolID: "search.query"}})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, "search.query", fl.lastStep.ToolID)
}

func TestService_CompleteEpisodeMapsResult(t *testing.T) {
	fl := &fakeLifecycle{completeRes: &memory.CompletionResult{EpisodeID: "ep-1", Stored: true, EvictedIDs: []string{"old-1"}}}
	s := &Service{lifecycle: fl}
	res, err := s.CompleteEpisode(context.Background(), CompleteEpisodeParams{EpisodeID: "ep-1"})
	require.NoError(t, err)
	assert.True(t, res.Stored)
	assert.Equal(t, []string{"old-1"}, res.EvictedIDs)
}

func TestService_DescribeToolsReturnsNamesOnly(t *testing.T) {
	s := NewService(&fakeLifecycle{}, nil, nil)
	names := s.DescribeTools()
	assert.Contains(t, names, "start_episode")
	assert.Contains(t, names, "retrieve_relevant_context")
	assert.Len(t, names, 7)
}

func TestService_DescribeToolReturnsFullRecordForKnownName(t *testing.T) {
	s := NewService(&fakeLifecycle{}, nil, nil)
	tool, ok := s.DescribeTool("log_step")
	require.True(t, ok)
	assert.NotEmpty(t, tool.Summary)
}

func TestService_DescribeToolUnknownNameReturnsFalse(t *testing.T) {
	s := NewService(&fakeLifecycle{}, nil, nil)
	_, ok := s.DescribeTool("does_not_exist")
	assert.False(t, ok)
}

func TestProject_EmptyFieldsReturnsEverything(t *testing.T) {
	ep := &memory.Episode{ID: "ep-1", TaskDescription: "task"}
	full, err := project(ep, nil)
	require.NoError(t, err)
	assert.Equal(t, "ep-1", full["id"])
	assert.Equal(t, "task", full["task_description"])
}

func TestProject_PrunesToRequestedDottedPaths(t *testing.T) {
	ep := &memory.Episode{
		ID:      "ep-1",
		Context: memory.Context{Domain: "web-api", Language: "go"},
	}
	pruned, err := project(ep, []string{"id", "context.domain"})
	require.NoError(t, err)

	assert.Equal(t, "ep-1", pruned["id"])
	ctx, ok := pruned["context"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "web-api", ctx["domain"])
	_, hasLanguage := ctx["language"]
	assert.False(t, hasLanguage, "language was not requested and should be pruned")
	_, hasTaskDescription := pruned["task_description"]
	assert.False(t, hasTaskDescription)
}

func TestProject_UnknownPathIsSilentlyIgnored(t *testing.T) {
	ep := &memory.Episode{ID: "ep-1"}
	pruned, err := project(ep, []string{"no_such_field"})
	require.NoError(t, err)
	assert.Empty(t, pruned)
}
