package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"
)

func openTestPrimary(t *testing.T) *SQLitePrimary {
	t.Helper()
	path := filepath.Join(t.TempDir(), "primary.db")
	p, err := NewSQLitePrimary(path, 1, logr.Discard())
	if err != nil {
		t.Fatalf("NewSQLitePrimary: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSQLitePrimary_PutGetRoundTrip(t *testing.T) {
	p := openTestPrimary(t)
	ctx := context.Background()

	ep := &Episode{
		ID:              "ep-1",
		TaskDescription: "implement retry backoff",
		Context:         Context{Domain: "web-api", Language: "go", Tags: []string{"http", "retry"}},
		TaskType:        TaskDebugging,
		CreatedAt:       time.Now(),
		Status:          StatusCompleted,
		Steps:           []Step{{Seq: 1, ToolID: "edit.apply"}},
		Outcome:         &Outcome{Verdict: VerdictSuccess},
		LastAccessedAt:  time.Now(),
	}
	if err := p.PutEpisode(ctx, ep); err != nil {
		t.Fatalf("PutEpisode: %v", err)
	}

	got, err := p.GetEpisode(ctx, "ep-1")
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if got.TaskDescription != ep.TaskDescription {
		t.Errorf("task description = %q, want %q", got.TaskDescription, ep.TaskDescription)
	}
	if len(got.Steps) != 1 || got.Steps[0].ToolID != "edit.apply" {
		t.Errorf("steps did not round-trip: %+v", got.Steps)
	}
	if got.Outcome == nil || got.Outcome.Verdict != VerdictSuccess {
		t.Errorf("outcome did not round-trip: %+v", got.Outcome)
	}
	if len(got.Context.Tags) != 2 {
		t.Errorf("tags did not round-trip: %+v", got.Context.Tags)
	}
}

func TestSQLitePrimary_GetEpisodeNotFound(t *testing.T) {
	p := openTestPrimary(t)
	if _, err := p.GetEpisode(context.Background(), "missing"); err == nil {
		t.Fatal("expected NotFound error, got nil")
	}
}

func TestSQLitePrimary_DeleteEpisode(t *testing.T) {
	p := openTestPrimary(t)
	ctx := context.Background()
	ep := &Episode{ID: "ep-1", Status: StatusCompleted, CreatedAt: time.Now()}
	if err := p.PutEpisode(ctx, ep); err != nil {
		t.Fatalf("PutEpisode: %v", err)
	}
	if err := p.DeleteEpisode(ctx, "ep-1"); err != nil {
		t.Fatalf("DeleteEpisode: %v", err)
	}
	if err := p.DeleteEpisode(ctx, "ep-1"); err == nil {
		t.Fatal("expected NotFound on second delete")
	}
}

func TestSQLitePrimary_ListEpisodesFiltersByDomainAndStatus(t *testing.T) {
	p := openTestPrimary(t)
	ctx := context.Background()

	p.PutEpisode(ctx, &Episode{ID: "a", Context: Context{Domain: "web-api"}, Status: StatusCompleted, CreatedAt: time.Now()})
	p.PutEpisode(ctx, &Episode{ID: "b", Context: Context{Domain: "cli-tool"}, Status: StatusCompleted, CreatedAt: time.Now()})
	p.PutEpisode(ctx, &Episode{ID: "c", Context: Context{Domain: "web-api"}, Status: StatusRejected, CreatedAt: time.Now()})

	got, err := p.ListEpisodes(ctx, Filter{Domain: "web-api", Status: StatusCompleted})
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("expected only episode a, got %+v", got)
	}
}

func TestSQLitePrimary_CountFallsBackToScanWithoutMeta(t *testing.T) {
	p := openTestPrimary(t)
	ctx := context.Background()
	p.PutEpisode(ctx, &Episode{ID: "a", Status: StatusCompleted, CreatedAt: time.Now()})
	p.PutEpisode(ctx, &Episode{ID: "b", Status: StatusCompleted, CreatedAt: time.Now()})

	n, err := p.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}

	if err := p.SetCount(ctx, 5); err != nil {
		t.Fatalf("SetCount: %v", err)
	}
	n, err = p.Count(ctx)
	if err != nil {
		t.Fatalf("Count after SetCount: %v", err)
	}
	if n != 5 {
		t.Errorf("Count after SetCount = %d, want 5 (maintained metadata, not a scan)", n)
	}
}

func TestSQLitePrimary_UpdatePatternAtomicSeedsThenMerges(t *testing.T) {
	p := openTestPrimary(t)
	ctx := context.Background()

	err := p.UpdatePatternAtomic(ctx, "pat-1", func(current *Pattern) (*Pattern, error) {
		if current != nil {
			t.Fatalf("expected no existing pattern, got %+v", current)
		}
		return &Pattern{ID: "pat-1", Kind: PatternToolSequence, Confidence: 0.8, Frequency: 1}, nil
	})
	if err != nil {
		t.Fatalf("UpdatePatternAtomic (seed): %v", err)
	}

	err = p.UpdatePatternAtomic(ctx, "pat-1", func(current *Pattern) (*Pattern, error) {
		if current == nil {
			t.Fatal("expected the seeded pattern to be visible")
		}
		current.Frequency++
		return current, nil
	})
	if err != nil {
		t.Fatalf("UpdatePatternAtomic (merge): %v", err)
	}

	got, err := p.GetPattern(ctx, "pat-1")
	if err != nil {
		t.Fatalf("GetPattern: %v", err)
	}
	if got.Frequency != 2 {
		t.Errorf("Frequency = %d, want 2", got.Frequency)
	}
}

func TestSQLitePrimary_RepairListQueueAndDrain(t *testing.T) {
	p := openTestPrimary(t)
	ctx := context.Background()

	if err := p.QueueRepair(ctx, "episode", "ep-1"); err != nil {
		t.Fatalf("QueueRepair: %v", err)
	}
	ids, err := p.DrainRepairList(ctx, 10)
	if err != nil {
		t.Fatalf("DrainRepairList: %v", err)
	}
	if len(ids) != 1 || ids[0] != "ep-1" {
		t.Errorf("DrainRepairList = %v, want [ep-1]", ids)
	}
	if err := p.ClearRepair(ctx, "ep-1"); err != nil {
		t.Fatalf("ClearRepair: %v", err)
	}
	ids, _ = p.DrainRepairList(ctx, 10)
	if len(ids) != 0 {
		t.Errorf("expected empty repair list after clear, got %v", ids)
	}
}
