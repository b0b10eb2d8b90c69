// Package retryio wraps plain filesystem operations with bounded,
// backend-aware retries. Disk steps in the fork engine's hot path (Edit
// Applier writes, checkpoint copies, save-coordinator copies) go through
// here instead of calling os.* directly.
package retryio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// Do executes task with Fibonacci backoff up to 5 retries. Non-retryable
// errors (see shouldRetry) fail fast.
func Do(ctx context.Context, task func(ctx context.Context) error) error {
	b := retry.NewFibonacci(50 * time.Millisecond)
	if err := retry.Do(ctx, retry.WithMaxRetries(5, b), func(ctx context.Context) error {
		err := task(ctx)
		if err == nil {
			return nil
		}
		if shouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	}); err != nil {
		slog.Warn("retryio: gave up", "error", err)
		return err
	}
	return nil
}

// shouldRetry reports whether err is a transient condition worth retrying.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrExist) {
		return false
	}
	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.EINVAL):
		return false
	}
	return true
}

// WriteFile retry-wraps os.WriteFile, creating the parent directory first.
func WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(parentDir(name), 0o755); err != nil {
		return err
	}
	return Do(ctx, func(ctx context.Context) error {
		return os.WriteFile(name, data, perm)
	})
}

// ReadFile retry-wraps os.ReadFile.
func ReadFile(ctx context.Context, name string) ([]byte, error) {
	var out []byte
	err := Do(ctx, func(ctx context.Context) error {
		b, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

// Remove retry-wraps os.Remove; a not-exist error is returned unwrapped so
// callers can check os.IsNotExist.
func Remove(ctx context.Context, name string) error {
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return err
	}
	return Do(ctx, func(ctx context.Context) error {
		return os.Remove(name)
	})
}

// RemoveAll retry-wraps os.RemoveAll.
func RemoveAll(ctx context.Context, path string) error {
	return Do(ctx, func(ctx context.Context) error {
		return os.RemoveAll(path)
	})
}

// MkdirAll retry-wraps os.MkdirAll.
func MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	return Do(ctx, func(ctx context.Context) error {
		return os.MkdirAll(path, perm)
	})
}

// CopyFile copies src to dst via a sibling ".tmp" file and an atomic
// rename, so a crash mid-copy never leaves a partially written dst in
// place. This is the shared primitive behind backup-then-write and every file copy in the engine.
func CopyFile(ctx context.Context, src, dst string) (err error) {
	if err := os.MkdirAll(parentDir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	return Do(ctx, func(ctx context.Context) error {
		in, err := os.Open(src)
		if err != nil {
			return err
		}
		defer in.Close()

		out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			os.Remove(tmp)
			return err
		}
		if err := out.Sync(); err != nil {
			out.Close()
			os.Remove(tmp)
			return err
		}
		if err := out.Close(); err != nil {
			os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, dst)
	})
}

// WriteFileAtomic writes data to dst via a sibling temp file and rename,
// the same atomicity shape as CopyFile but for in-memory content (used by
// the Edit Applier and style batch pipeline to rewrite an archive).
func WriteFileAtomic(ctx context.Context, dst string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(parentDir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	return Do(ctx, func(ctx context.Context) error {
		if err := os.WriteFile(tmp, data, perm); err != nil {
			os.Remove(tmp)
			return err
		}
		return os.Rename(tmp, dst)
	})
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != os.PathSeparator && path[i] != '/' {
		i--
	}
	if i < 0 {
		return "."
	}
	return path[:i]
}
