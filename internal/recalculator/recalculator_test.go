package recalculator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestExecRecalculatorSucceeds(t *testing.T) {
	r := NewExecRecalculator("/bin/true", "noop")
	result, err := r.Recalc(context.Background(), filepath.Join(t.TempDir(), "book.xlsx"), time.Second)
	if err != nil {
		t.Fatalf("recalc: %v", err)
	}
	if result.Backend != "noop" {
		t.Fatalf("expected backend %q, got %q", "noop", result.Backend)
	}
}

func TestExecRecalculatorUnreachableBinary(t *testing.T) {
	r := NewExecRecalculator(filepath.Join(t.TempDir(), "does-not-exist-binary"), "noop")
	_, err := r.Recalc(context.Background(), "book.xlsx", time.Second)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable for an unreachable binary, got %v", err)
	}
}

func TestExecRecalculatorTimesOut(t *testing.T) {
	r := NewExecRecalculator("/bin/sleep", "noop")
	_, err := r.Recalc(context.Background(), "5", 10*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestExecRecalculatorNonZeroExit(t *testing.T) {
	r := NewExecRecalculator("/bin/false", "noop")
	_, err := r.Recalc(context.Background(), filepath.Join(t.TempDir(), "book.xlsx"), time.Second)
	if err == nil {
		t.Fatal("expected a non-zero exit to surface as an error")
	}
}
