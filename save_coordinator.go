package sheetforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sheetforge/sheetforge/internal/guard"
	"github.com/sheetforge/sheetforge/internal/retryio"
)

// SaveResult is the outcome of SaveFork.
type SaveResult struct {
	SavedTo    string
	ForkDropped bool
}

// SaveFork resolves and validates the target, backs up any existing
// target file under a temp-file guard, copies the working copy over the
// target, and on success optionally drops the fork. On failure the
// backup is restored over the target and the error is propagated
// unchanged.
func (r *ForkRegistry) SaveFork(ctx context.Context, forkID, target string, dropFork, allowOverwrite bool) (SaveResult, error) {
	fc, err := r.GetFork(forkID)
	if err != nil {
		return SaveResult{}, err
	}

	resolvedTarget, err := r.resolveSaveTarget(target, fc.BasePath)
	if err != nil {
		return SaveResult{}, err
	}
	if resolvedTarget == fc.BasePath && !allowOverwrite {
		return SaveResult{}, NewErrorf(PolicyDenied, "overwriting the fork's base path requires allow_overwrite")
	}
	if err := fc.ValidateBaseUnchanged(ctx); err != nil {
		return SaveResult{}, err
	}
	if _, err := os.Stat(fc.WorkingCopy); err != nil {
		return SaveResult{}, NewError(IO, fmt.Errorf("save fork: working copy: %w", err))
	}

	backup := guard.NewTempFile(resolvedTarget + ".backup.xlsx")
	targetExisted := false
	if _, err := os.Stat(resolvedTarget); err == nil {
		targetExisted = true
		if err := retryio.CopyFile(ctx, resolvedTarget, backup.Path()); err != nil {
			return SaveResult{}, NewError(IO, fmt.Errorf("save fork: backup target: %w", err))
		}
	}
	defer backup.Close(ctx)

	if err := retryio.CopyFile(ctx, fc.WorkingCopy, resolvedTarget); err != nil {
		if targetExisted {
			if rbErr := retryio.CopyFile(ctx, backup.Path(), resolvedTarget); rbErr != nil {
				return SaveResult{}, NewError(IO, fmt.Errorf("save fork: copy failed (%v) and rollback failed: %w", err, rbErr))
			}
		}
		return SaveResult{}, NewError(IO, fmt.Errorf("save fork: copy to target: %w", err))
	}

	backup.Disarm()
	if targetExisted {
		retryio.Remove(ctx, backup.Path())
	}

	if dropFork {
		if err := r.Discard(ctx, forkID); err != nil {
			return SaveResult{}, err
		}
	}

	return SaveResult{SavedTo: resolvedTarget, ForkDropped: dropFork}, nil
}

// resolveSaveTarget resolves target against the workspace root (absolute
// targets must still lie within it) and validates its extension.
func (r *ForkRegistry) resolveSaveTarget(target, basePath string) (string, error) {
	if target == "" {
		target = basePath
	}
	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(r.cfg.WorkspaceRoot, resolved)
	}

	if err := checkWithinWorkspace(r.cfg.WorkspaceRoot, resolved); err != nil {
		return "", NewErrorf(PolicyDenied, "target %q escapes workspace root", target)
	}
	if strings.ToLower(filepath.Ext(resolved)) != ".xlsx" {
		return "", NewErrorf(PolicyDenied, "target %q does not have a .xlsx extension", target)
	}
	return resolved, nil
}
