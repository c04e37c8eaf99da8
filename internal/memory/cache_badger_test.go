package memory

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selfmemory/memoryd/internal/memerr"
)

func openTestCache(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := NewBadgerCache(t.TempDir(), logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBadgerCache_PutGetRoundTrip(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	ep := &Episode{ID: "ep-1", TaskDescription: "cache me", Status: StatusCompleted, CreatedAt: time.Now()}
	require.NoError(t, c.PutEpisode(ctx, ep))

	got, err := c.GetEpisode(ctx, "ep-1")
	require.NoError(t, err)
	assert.Equal(t, "cache me", got.TaskDescription)
}

func TestBadgerCache_GetEpisodeNotFound(t *testing.T) {
	c := openTestCache(t)
	_, err := c.GetEpisode(context.Background(), "missing")
	assert.Error(t, err)
}

func TestBadgerCache_DeleteEpisodeRemovesChecksumAndSummary(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.PutEpisode(ctx, &Episode{ID: "ep-1", Status: StatusCompleted, CreatedAt: time.Now()}))
	require.NoError(t, c.PutSummary(ctx, &Summary{EpisodeID: "ep-1", Text: "summary"}))

	require.NoError(t, c.DeleteEpisode(ctx, "ep-1"))
	_, _, err := c.Checksum(ctx, "ep-1")
	require.NoError(t, err)
	_, ok, _ := c.Checksum(ctx, "ep-1")
	assert.False(t, ok)
	_, err = c.GetSummary(ctx, "ep-1")
	assert.Error(t, err)
}

func TestBadgerCache_ListEpisodesFiltersByDomain(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.PutEpisode(ctx, &Episode{ID: "a", Context: Context{Domain: "web-api"}, Status: StatusCompleted, CreatedAt: time.Now()}))
	require.NoError(t, c.PutEpisode(ctx, &Episode{ID: "b", Context: Context{Domain: "cli-tool"}, Status: StatusCompleted, CreatedAt: time.Now()}))

	got, err := c.ListEpisodes(ctx, Filter{Domain: "web-api"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestBadgerCache_UpdatePatternAtomicSeedsThenMerges(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()

	err := c.UpdatePatternAtomic(ctx, "pat-1", func(current *Pattern) (*Pattern, error) {
		require.Nil(t, current)
		return &Pattern{ID: "pat-1", Confidence: 0.8, Frequency: 1}, nil
	})
	require.NoError(t, err)

	err = c.UpdatePatternAtomic(ctx, "pat-1", func(current *Pattern) (*Pattern, error) {
		require.NotNil(t, current)
		current.Frequency++
		return current, nil
	})
	require.NoError(t, err)

	got, err := c.GetPattern(ctx, "pat-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Frequency)
}

func TestBadgerCache_ChecksumAbsentReturnsFalseNotError(t *testing.T) {
	c := openTestCache(t)
	_, ok, err := c.Checksum(context.Background(), "nonexistent")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerCache_GetEpisodeRejectsUnsupportedSchemaVersion(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	ep := &Episode{ID: "ep-future", Status: StatusCompleted, CreatedAt: time.Now(), SchemaVersion: SchemaVersion + 1}
	require.NoError(t, c.PutEpisode(ctx, ep))

	_, err := c.GetEpisode(ctx, "ep-future")
	require.Error(t, err)
	kind, ok := memerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, memerr.KindUnsupportedVer, kind)
}
