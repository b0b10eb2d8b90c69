package sheetforge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveExistingAncestor resolves symlinks along path's nearest existing
// ancestor directory and rejoins the remaining, possibly nonexistent, path
// components lexically. filepath.EvalSymlinks alone requires the full path
// to exist, but a save target or a soon-to-be-created working copy often
// doesn't yet.
func resolveExistingAncestor(path string) (string, error) {
	p := filepath.Clean(path)
	var suffix []string
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, suffix...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor for %q", path)
		}
		suffix = append([]string{filepath.Base(p)}, suffix...)
		p = parent
	}
}

// checkWithinWorkspace rejects path if it lies outside root once symlinks
// along both are resolved, so a symlink inside the workspace root pointing
// outside it can't be used to escape the lexical containment check.
func checkWithinWorkspace(root, path string) error {
	resolvedRoot, err := resolveExistingAncestor(root)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}
	resolvedPath, err := resolveExistingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	rel, err := filepath.Rel(resolvedRoot, resolvedPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("path %q escapes workspace root", path)
	}
	return nil
}
