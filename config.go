package sheetforge

import (
	"encoding/json"
	"os"
	"time"
)

// Limits bundles the tunable constants from .
type Limits struct {
	MaxConcurrentForks      int           `json:"max_concurrent_forks"`
	MaxWorkingCopyBytes     int64         `json:"max_working_copy_bytes"`
	MaxCheckpointsPerFork   int           `json:"max_checkpoints_per_fork"`
	MaxCheckpointTotalBytes int64         `json:"max_checkpoint_total_bytes"`
	MaxStagedChangesPerFork int           `json:"max_staged_changes_per_fork"`
	TTLCheckPeriod          time.Duration `json:"ttl_check_period"`
	ForkTTL                 time.Duration `json:"fork_ttl"`
	MaxConcurrentRecalcs    int           `json:"max_concurrent_recalcs"`
}

// DefaultLimits returns the limits named literally in .
func DefaultLimits() Limits {
	return Limits{
		MaxConcurrentForks:      10,
		MaxWorkingCopyBytes:     100 << 20,
		MaxCheckpointsPerFork:   10,
		MaxCheckpointTotalBytes: 500 << 20,
		MaxStagedChangesPerFork: 20,
		TTLCheckPeriod:          60 * time.Second,
		ForkTTL:                 0,
		MaxConcurrentRecalcs:    4,
	}
}

// Configuration bundles the workspace/scratch roots and the tunable limits
// loaded from a JSON config file at startup.
type Configuration struct {
	WorkspaceRoot  string `json:"workspace_root"`
	ForkScratch    string `json:"fork_scratch_root"`
	CheckpointRoot string `json:"checkpoint_scratch_root"`
	StagedRoot     string `json:"staged_scratch_root"`
	Limits         Limits `json:"limits"`
}

// LoadConfiguration reads a JSON file and loads it into a Configuration.
// Unset limit fields fall back to DefaultLimits' values.
func LoadConfiguration(path string) (Configuration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, NewError(IO, err)
	}

	cfg := Configuration{Limits: DefaultLimits()}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Configuration{}, NewError(MalformedInput, err)
	}
	return cfg, nil
}
