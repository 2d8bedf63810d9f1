package quiz

import (
	"errors"
	"testing"
	"time"

	"quiz-engine/internal/apperr"
)

func TestCheckAvailable(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	cases := []struct {
		name   string
		mutate func(*Definition)
		ok     bool
	}{
		{"published active", func(*Definition) {}, true},
		{"draft", func(d *Definition) { d.Status = StatusDraft }, false},
		{"inactive", func(d *Definition) { d.IsActive = false }, false},
		{"not yet open", func(d *Definition) { d.AvailableFrom = &future }, false},
		{"closed", func(d *Definition) { d.AvailableUntil = &past }, false},
		{"inside window", func(d *Definition) { d.AvailableFrom = &past; d.AvailableUntil = &future }, true},
	}

	for _, tc := range cases {
		definition := sampleDefinition("qz_1")
		tc.mutate(&definition)
		err := definition.CheckAvailable(now)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, apperr.ErrInvalidState) {
			t.Fatalf("%s: expected invalid state, got %v", tc.name, err)
		}
	}
}

func TestCheckAccess(t *testing.T) {
	definition := sampleDefinition("qz_1")
	definition.CreatedBy = "owner"
	definition.Access = AccessControl{
		Mode:         AccessRestricted,
		AllowedUsers: []string{"alice", "mallory"},
		BlockedUsers: []string{"mallory"},
	}

	if err := definition.CheckAccess("alice"); err != nil {
		t.Fatalf("allowed user rejected: %v", err)
	}
	if err := definition.CheckAccess("owner"); err != nil {
		t.Fatalf("creator rejected: %v", err)
	}
	for _, user := range []string{"bob", "mallory", " "} {
		if err := definition.CheckAccess(user); !errors.Is(err, apperr.ErrForbidden) {
			t.Fatalf("CheckAccess(%q) = %v, want forbidden", user, err)
		}
	}

	definition.Access.Mode = AccessPublic
	if err := definition.CheckAccess("bob"); err != nil {
		t.Fatalf("public quiz rejected: %v", err)
	}
	if err := definition.CheckAccess("mallory"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("blocked user allowed on public quiz")
	}
}

func TestCheckReview(t *testing.T) {
	definition := sampleDefinition("qz_1")
	definition.CreatedBy = "owner"
	definition.Access.Reviewers = []string{"grader"}

	for _, user := range []string{"owner", "grader", " grader "} {
		if err := definition.CheckReview(user); err != nil {
			t.Fatalf("CheckReview(%q) = %v", user, err)
		}
	}
	for _, user := range []string{"alice", "", " "} {
		if err := definition.CheckReview(user); !errors.Is(err, apperr.ErrForbidden) {
			t.Fatalf("CheckReview(%q) = %v, want forbidden", user, err)
		}
	}

	definition.CreatedBy = ""
	if err := definition.CheckReview(""); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("empty author must not match an empty caller")
	}
}

func TestCheckRetake(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-10 * time.Minute)

	definition := sampleDefinition("qz_1")
	if err := definition.CheckRetake(0, nil, now); err != nil {
		t.Fatalf("first attempt rejected: %v", err)
	}
	if err := definition.CheckRetake(1, &finished, now); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("retake allowed without AllowRetake")
	}

	definition.AllowRetake = true
	definition.MaxAttempts = 2
	if err := definition.CheckRetake(1, &finished, now); err != nil {
		t.Fatalf("second attempt rejected: %v", err)
	}
	if err := definition.CheckRetake(2, &finished, now); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("third attempt allowed with MaxAttempts=2")
	}

	definition.RetakeDelayMinutes = 30
	if err := definition.CheckRetake(1, &finished, now); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("retake allowed inside delay window")
	}
	if err := definition.CheckRetake(1, &finished, now.Add(time.Hour)); err != nil {
		t.Fatalf("retake rejected after delay: %v", err)
	}
}

func TestTimeBudgetAndMaxScore(t *testing.T) {
	definition := sampleDefinition("qz_1")
	definition.Questions = append(definition.Questions, definition.Questions[0])
	definition.Questions[0].Points = 5

	if definition.TimeBudget() != 0 {
		t.Fatalf("expected untimed quiz")
	}
	definition.TimeLimitMinutes = 10
	if definition.TimeBudget() != 10*time.Minute {
		t.Fatalf("unexpected budget %s", definition.TimeBudget())
	}
	definition.TimePerQuestionSeconds = 45
	if definition.TimeBudget() != 90*time.Second {
		t.Fatalf("per-question time should override, got %s", definition.TimeBudget())
	}

	if got := definition.MaxScore(); got != 6 {
		t.Fatalf("expected max score 6 with default points, got %v", got)
	}
}
