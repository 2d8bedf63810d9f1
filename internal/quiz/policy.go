package quiz

import (
	"slices"
	"strings"
	"time"

	"quiz-engine/internal/apperr"
)

// CheckAvailable fails with InvalidState when the quiz is unpublished,
// deactivated, or outside its availability window.
func (d Definition) CheckAvailable(now time.Time) error {
	if d.Status != StatusPublished || !d.IsActive {
		return apperr.InvalidState("quiz not available")
	}
	if d.AvailableFrom != nil && now.Before(*d.AvailableFrom) {
		return apperr.InvalidState("quiz not available")
	}
	if d.AvailableUntil != nil && now.After(*d.AvailableUntil) {
		return apperr.InvalidState("quiz not available")
	}
	return nil
}

// CheckAccess applies the block list first, then the access mode.
func (d Definition) CheckAccess(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return apperr.Forbidden("user id is required")
	}
	if slices.Contains(d.Access.BlockedUsers, userID) {
		return apperr.Forbidden("user is blocked from this quiz")
	}

	switch d.Access.Mode {
	case AccessPublic, "":
		return nil
	case AccessPrivate, AccessRestricted:
		if userID == d.CreatedBy || slices.Contains(d.Access.AllowedUsers, userID) {
			return nil
		}
		return apperr.Forbidden("user does not have access to this quiz")
	default:
		return apperr.Forbidden("unknown access mode %q", d.Access.Mode)
	}
}

// CheckReview allows the quiz author and listed reviewers to comment on
// results.
func (d Definition) CheckReview(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID != "" && (userID == d.CreatedBy || slices.Contains(d.Access.Reviewers, userID)) {
		return nil
	}
	return apperr.Forbidden("user may not review results of this quiz")
}

// CheckRetake decides whether a user with previous finished attempts may
// start another one. lastFinishedAt is the end of the most recent of them.
func (d Definition) CheckRetake(previous int, lastFinishedAt *time.Time, now time.Time) error {
	if previous <= 0 {
		return nil
	}
	if !d.AllowRetake {
		return apperr.InvalidState("max attempts reached")
	}
	if d.MaxAttempts > 0 && previous >= d.MaxAttempts {
		return apperr.InvalidState("max attempts reached")
	}
	if d.RetakeDelayMinutes > 0 && lastFinishedAt != nil {
		availableAt := lastFinishedAt.Add(time.Duration(d.RetakeDelayMinutes) * time.Minute)
		if now.Before(availableAt) {
			return apperr.InvalidState("retake available after %s", availableAt.UTC().Format(time.RFC3339))
		}
	}
	return nil
}
