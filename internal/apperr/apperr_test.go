package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(Validation("bad input")); got != KindValidation {
		t.Fatalf("expected KindValidation, got %v", got)
	}
	if got := KindOf(NotFound("missing")); got != KindNotFound {
		t.Fatalf("expected KindNotFound, got %v", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Fatalf("expected KindUnknown for plain error, got %v", got)
	}
	if got := KindOf(nil); got != KindUnknown {
		t.Fatalf("expected KindUnknown for nil, got %v", got)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := Conflict("already applied")
	outer := fmt.Errorf("apply: %w", inner)

	if !IsKind(outer, KindConflict) {
		t.Fatalf("expected wrapped error to keep KindConflict")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindExternal, cause, "push failed")

	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to reach the cause")
	}
	if KindOf(err) != KindExternal {
		t.Fatalf("expected KindExternal, got %v", KindOf(err))
	}
}
