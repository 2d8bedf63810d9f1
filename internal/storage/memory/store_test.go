package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-engine/internal/apperr"
	"quiz-engine/internal/attempt"
	"quiz-engine/internal/scoring"
)

func TestCreateRejectsSecondActiveAttempt(t *testing.T) {
	ctx := context.Background()
	store := New()

	first := &attempt.Attempt{ID: "a1", UserID: "u1", QuizID: "q1", Status: attempt.StatusStarted}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	second := &attempt.Attempt{ID: "a2", UserID: "u1", QuizID: "q1", Status: attempt.StatusStarted}
	if err := store.Create(ctx, second); !errors.Is(err, attempt.ErrActiveAttemptExists) {
		t.Fatalf("expected active attempt conflict, got %v", err)
	}
}

func TestUpdateComparesVersions(t *testing.T) {
	ctx := context.Background()
	store := New()
	a := &attempt.Attempt{ID: "a1", UserID: "u1", QuizID: "q1", Status: attempt.StatusStarted}
	if err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	stale, _ := store.Get(ctx, "a1")
	fresh, _ := store.Get(ctx, "a1")
	fresh.Status = attempt.StatusInProgress
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if fresh.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", fresh.Version)
	}
	if err := store.Update(ctx, stale); !errors.Is(err, attempt.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
}

func TestDeleteStaleOnlyTouchesMatchingStatuses(t *testing.T) {
	ctx := context.Background()
	store := New()
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for id, status := range map[string]attempt.Status{
		"started":   attempt.StatusStarted,
		"abandoned": attempt.StatusAbandoned,
		"completed": attempt.StatusCompleted,
	} {
		if err := store.Create(ctx, &attempt.Attempt{ID: id, UserID: id, QuizID: "q1", Status: status, LastActiveAt: old}); err != nil {
			t.Fatalf("Create(%s) returned error: %v", id, err)
		}
	}

	deleted, err := store.DeleteStale(ctx, attempt.RetentionStatuses, old.Add(time.Hour))
	if err != nil || deleted != 2 {
		t.Fatalf("expected 2 deletions, got %d %v", deleted, err)
	}
	if _, err := store.Get(ctx, "completed"); err != nil {
		t.Fatalf("completed attempt was deleted: %v", err)
	}
}

func TestListByStatusPages(t *testing.T) {
	ctx := context.Background()
	store := New()
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for idx, id := range []string{"b", "a", "c", "d"} {
		status := attempt.StatusInProgress
		if id == "d" {
			status = attempt.StatusPaused
		}
		startedAt := start
		if id == "c" {
			startedAt = start.Add(time.Minute)
		}
		if err := store.Create(ctx, &attempt.Attempt{ID: id, UserID: id, QuizID: "q1", Status: status, StartedAt: startedAt}); err != nil {
			t.Fatalf("Create(%d) returned error: %v", idx, err)
		}
	}

	var (
		pages int
		seen  []string
		after *attempt.Cursor
	)
	for {
		page, err := store.ListByStatus(ctx, attempt.SweepStatuses, after, 2)
		if err != nil {
			t.Fatalf("ListByStatus returned error: %v", err)
		}
		pages++
		for _, a := range page.Attempts {
			seen = append(seen, a.ID)
		}
		if page.Next == nil {
			break
		}
		after = page.Next
	}
	if pages != 2 || len(seen) != 3 || seen[0] != "a" || seen[1] != "b" || seen[2] != "c" {
		t.Fatalf("unexpected scan: pages=%d ids=%v", pages, seen)
	}
}

func TestResultsRejectDuplicateAttempt(t *testing.T) {
	ctx := context.Background()
	store := New()

	if err := store.CreateResult(ctx, &scoring.Result{ID: "r1", AttemptID: "a1"}); err != nil {
		t.Fatalf("CreateResult returned error: %v", err)
	}
	if err := store.CreateResult(ctx, &scoring.Result{ID: "r2", AttemptID: "a1"}); !errors.Is(err, scoring.ErrDuplicateResult) {
		t.Fatalf("expected duplicate result, got %v", err)
	}
	if err := store.AppendFeedback(ctx, "missing", scoring.ReviewerFeedback{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
