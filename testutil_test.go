package sheetforge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetforge/sheetforge/internal/workbook"
)

// newTestRegistry wires a registry against a temp workspace with everything
// under t.TempDir(), so every fork/checkpoint/staged-change scratch path is
// cleaned up automatically when the test ends.
func newTestRegistry(t *testing.T, limits Limits) (*ForkRegistry, string) {
	t.Helper()
	root := t.TempDir()
	cfg := Configuration{
		WorkspaceRoot:  root,
		ForkScratch:    filepath.Join(root, "scratch"),
		CheckpointRoot: filepath.Join(root, "checkpoints"),
		StagedRoot:     filepath.Join(root, "staged"),
		Limits:         limits,
	}
	for _, dir := range []string{cfg.ForkScratch, cfg.CheckpointRoot, cfg.StagedRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return NewForkRegistry(cfg), root
}

// newTestWorkbook writes a minimal one-sheet workbook with a single
// populated cell to path and returns it.
func newTestWorkbook(t *testing.T, path string, sheet string) {
	t.Helper()
	b := workbook.New(sheet)
	s, _ := b.Sheet(sheet)
	addr, err := workbook.ParseA1("A1")
	if err != nil {
		t.Fatalf("parse A1: %v", err)
	}
	s.Set(addr, workbook.Cell{Value: "1"})
	if err := b.Save(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}
