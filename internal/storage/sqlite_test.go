package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/pipeline"
)

func openTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "runs", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_RunLifecycle(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.RunStarted(ctx, "run-1", start); err != nil {
		t.Fatal(err)
	}
	steps := []pipeline.Transition{
		{State: pipeline.StateUploading, At: start.Add(time.Second)},
		{Side: models.SideFront, State: pipeline.StateRecognizingFrontText, At: start.Add(2 * time.Second)},
		{Side: models.SideFront, State: pipeline.StateAnsweringFront, At: start.Add(3 * time.Second)},
		{State: pipeline.StateFailed, At: start.Add(4 * time.Second)},
	}
	for _, tr := range steps {
		if err := store.Transition(ctx, "run-1", tr); err != nil {
			t.Fatal(err)
		}
	}
	outcome := &pipeline.Outcome{
		RunID:      "run-1",
		State:      pipeline.StateFailed,
		Reason:     pipeline.ReasonUpload,
		FailedSide: models.SideBack,
		FinishedAt: start.Add(5 * time.Second),
	}
	if err := store.RunFinished(ctx, outcome); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != pipeline.StateFailed || got.Reason != pipeline.ReasonUpload || got.FailedSide != "back" {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(start) || !got.UpdatedAt.Equal(start.Add(5*time.Second)) {
		t.Errorf("timestamps: created %v updated %v", got.CreatedAt, got.UpdatedAt)
	}
	if len(got.Transitions) != len(steps) {
		t.Fatalf("expected %d transitions, got %d", len(steps), len(got.Transitions))
	}
	for i, tr := range got.Transitions {
		if tr.State != steps[i].State || tr.Side != steps[i].Side || !tr.At.Equal(steps[i].At) {
			t.Errorf("transition %d: got %+v, want %+v", i, tr, steps[i])
		}
	}
}

func TestSQLiteStorage_RestartResetsRun(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	_ = store.RunStarted(ctx, "pair", now)
	_ = store.Transition(ctx, "pair", pipeline.Transition{State: pipeline.StateUploading, At: now})
	if err := store.RunStarted(ctx, "pair", now.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetRun(ctx, "pair")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != pipeline.StateIdle || len(got.Transitions) != 0 {
		t.Errorf("restart should reset the run, got %+v", got)
	}
	if n, _ := store.CountRuns(ctx); n != 1 {
		t.Errorf("expected 1 run, got %d", n)
	}
}

func TestSQLiteStorage_NotFound(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun: expected ErrRunNotFound, got %v", err)
	}
	err := store.Transition(ctx, "missing", pipeline.Transition{State: pipeline.StateUploading, At: time.Now()})
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Transition: expected ErrRunNotFound, got %v", err)
	}
}

func TestSQLiteStorage_ListAndStats(t *testing.T) {
	store := openTestStorage(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	results := []struct {
		state  pipeline.State
		reason pipeline.Reason
	}{
		{pipeline.StateDone, pipeline.ReasonNone},
		{pipeline.StateDone, pipeline.ReasonNone},
		{pipeline.StateFailed, pipeline.ReasonOCR},
	}
	for i, r := range results {
		id := fmt.Sprintf("run-%d", i)
		at := base.Add(time.Duration(i) * time.Minute)
		if err := store.RunStarted(ctx, id, at); err != nil {
			t.Fatal(err)
		}
		if err := store.RunFinished(ctx, &pipeline.Outcome{RunID: id, State: r.state, Reason: r.reason, FinishedAt: at}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := store.ListRuns(ctx, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Errorf("expected newest first, got %+v", runs)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Runs != 3 || stats.ByState[pipeline.StateDone] != 2 || stats.ByReason[pipeline.ReasonOCR] != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
