package sheetforge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestValidateBaseUnchangedDetectsContentChange(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "book.xlsx")
	newTestWorkbook(t, base, "Sheet1")

	fc, err := NewForkContext(context.Background(), "f1", base, base, filepath.Join(root, "cp"))
	if err != nil {
		t.Fatalf("new fork context: %v", err)
	}
	if err := fc.ValidateBaseUnchanged(context.Background()); err != nil {
		t.Fatalf("expected no change yet, got %v", err)
	}

	// Force the mtime forward so the fast path can't short-circuit before
	// the content hash is re-checked, regardless of filesystem mtime
	// resolution.
	future := time.Now().Add(time.Hour)
	newTestWorkbook(t, base, "Sheet2")
	if err := os.Chtimes(base, future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := fc.ValidateBaseUnchanged(context.Background()); CodeOf(err) != BaseChanged {
		t.Fatalf("expected BaseChanged once the base's content hash no longer matches the fork-creation snapshot, got %v", err)
	}
}

func TestIsExpired(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "book.xlsx")
	newTestWorkbook(t, base, "Sheet1")

	fc, err := NewForkContext(context.Background(), "f1", base, base, filepath.Join(root, "cp"))
	if err != nil {
		t.Fatalf("new fork context: %v", err)
	}

	if fc.IsExpired(0) {
		t.Fatal("a zero TTL must mean forks never expire")
	}
	if fc.IsExpired(time.Hour) {
		t.Fatal("a freshly-touched fork must not be expired")
	}

	fc.lastAccessed.Store(time.Now().Add(-2 * time.Hour).UnixNano())
	if !fc.IsExpired(time.Hour) {
		t.Fatal("expected a fork untouched for 2h to be expired under a 1h TTL")
	}
}

func TestValidateVersion(t *testing.T) {
	root := t.TempDir()
	base := filepath.Join(root, "book.xlsx")
	newTestWorkbook(t, base, "Sheet1")

	fc, err := NewForkContext(context.Background(), "f1", base, base, filepath.Join(root, "cp"))
	if err != nil {
		t.Fatalf("new fork context: %v", err)
	}
	if err := fc.ValidateVersion(0); err != nil {
		t.Fatalf("expected version 0 to match a fresh context, got %v", err)
	}
	fc.incrementVersion()
	if err := fc.ValidateVersion(0); CodeOf(err) != Conflict {
		t.Fatalf("expected Conflict after incrementing past the expected version, got %v", err)
	}
}
