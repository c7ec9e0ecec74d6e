package application

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	t.Parallel()

	var err *ValidationError
	if err.Error() != "" {
		t.Fatalf("expected empty string for nil error, got %q", err.Error())
	}

	empty := &ValidationError{}
	if got := empty.Error(); got != "validation failed" {
		t.Fatalf("expected generic message for empty error, got %q", got)
	}

	withMessage := NewValidationError("votes", "submit at least one vote")
	if got := withMessage.Error(); got != "submit at least one vote" {
		t.Fatalf("expected summary message, got %q", got)
	}
	if withMessage.FieldErrors["votes"] == "" {
		t.Fatal("expected field error to be recorded")
	}
}

func TestValidationError_HasErrors(t *testing.T) {
	t.Parallel()

	if (&ValidationError{}).HasErrors() {
		t.Fatalf("expected HasErrors to report false for empty error")
	}
	if !(&ValidationError{FieldErrors: map[string]string{"field": "bad"}}).HasErrors() {
		t.Fatalf("expected HasErrors to report true when fields are present")
	}
	if !(&ValidationError{Message: "bad"}).HasErrors() {
		t.Fatalf("expected HasErrors to report true when a message is set")
	}
}

func TestValidationError_AddAndMerge(t *testing.T) {
	t.Parallel()

	base := &ValidationError{}
	base.add("first", "value")
	if got := base.FieldErrors["first"]; got != "value" {
		t.Fatalf("expected add to populate map, got %q", got)
	}

	other := &ValidationError{FieldErrors: map[string]string{"second": "another"}}
	base.merge(other)
	if got := base.FieldErrors["second"]; got != "another" {
		t.Fatalf("expected merge to copy field, got %q", got)
	}

	base.merge(nil)
	if len(base.FieldErrors) != 2 {
		t.Fatalf("expected merge with nil to leave fields unchanged")
	}
}

func TestVotingClosedError(t *testing.T) {
	t.Parallel()

	for _, reason := range []ClosedReason{ClosedDisabled, ClosedNoActiveSlot, ClosedOutsideWindow} {
		err := fmt.Errorf("cast: %w", &VotingClosedError{Reason: reason})
		if !errors.Is(err, ErrVotingClosed) {
			t.Fatalf("%s: expected errors.Is(ErrVotingClosed)", reason)
		}
		var closed *VotingClosedError
		if !errors.As(err, &closed) || closed.Reason != reason {
			t.Fatalf("%s: errors.As failed", reason)
		}
	}

	if (&VotingClosedError{Reason: ClosedNoActiveSlot}).Error() == (&VotingClosedError{Reason: ClosedDisabled}).Error() {
		t.Fatal("slot and global closures must have distinct messages")
	}
}
