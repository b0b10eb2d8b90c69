package hashutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestHashFileIsStableAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	h1, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatalf("hash again: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected a stable hash for unchanged content, got %q then %q", h1, h2)
	}

	if err := os.WriteFile(path, []byte("goodbye"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	h3, err := HashFile(context.Background(), path)
	if err != nil {
		t.Fatalf("hash after rewrite: %v", err)
	}
	if h3 == h1 {
		t.Fatal("expected the hash to change when content changes")
	}
}

func TestValidateArchiveRejectsNonZIP(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-zip.xlsx")
	if err := os.WriteFile(path, []byte("plain text, not a zip"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateArchive(path); err == nil {
		t.Fatal("expected ValidateArchive to reject a file missing the ZIP signature")
	}
}

func TestValidateArchiveRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.xlsx")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateArchive(path); err == nil {
		t.Fatal("expected ValidateArchive to reject an empty file")
	}
}

func TestValidateArchiveAcceptsZIPSignature(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "looks-like-a-zip.xlsx")
	data := append([]byte{0x50, 0x4B, 0x03, 0x04}, []byte("padding-to-look-real")...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := ValidateArchive(path); err != nil {
		t.Fatalf("expected a file starting with the ZIP signature to pass, got %v", err)
	}
}
