package checkpoint

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// RetentionConfig defines which snapshots Prune removes.
type RetentionConfig struct {
	// MaxAge is how long a finished snapshot is kept. 0 keeps everything.
	MaxAge time.Duration

	// KeepFailed keeps failed and cancelled snapshots regardless of age.
	KeepFailed bool

	// KeepMin is the number of snapshots kept regardless of age.
	KeepMin int
}

// DefaultRetentionConfig returns the retention used by hosts that do not
// configure one.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		MaxAge:     30 * 24 * time.Hour,
		KeepFailed: true,
		KeepMin:    100,
	}
}

// PruneResult summarizes a prune pass.
type PruneResult struct {
	Deleted []string `json:"deleted"`
	Kept    []string `json:"kept"`
	Errors  []string `json:"errors,omitempty"`
}

// Prune deletes snapshots older than the retention age. Paused and running
// snapshots are always kept since they can still be resumed. With dryRun set
// nothing is deleted and the result lists what would be.
func Prune(ctx context.Context, store Store, cfg RetentionConfig, dryRun bool) (*PruneResult, error) {
	return prune(ctx, store, cfg, dryRun, time.Now())
}

func prune(ctx context.Context, store Store, cfg RetentionConfig, dryRun bool, now time.Time) (*PruneResult, error) {
	infos, err := store.List(ctx, ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	result := &PruneResult{
		Deleted: make([]string, 0),
		Kept:    make([]string, 0),
	}

	// Oldest first, so KeepMin retains the newest.
	slices.Reverse(infos)
	threshold := now.Add(-cfg.MaxAge)

	removed := 0
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !prunable(info, cfg, threshold) || len(infos)-removed-1 < cfg.KeepMin {
			result.Kept = append(result.Kept, info.ExecutionID)
			continue
		}
		if !dryRun {
			if err := store.Delete(ctx, info.ExecutionID); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("delete %s: %v", info.ExecutionID, err))
				continue
			}
		}
		result.Deleted = append(result.Deleted, info.ExecutionID)
		removed++
	}
	return result, nil
}

func prunable(info Info, cfg RetentionConfig, threshold time.Time) bool {
	if cfg.MaxAge <= 0 || !info.SavedAt.Before(threshold) {
		return false
	}
	switch info.Status {
	case StatusPaused, StatusRunning:
		return false
	case StatusFailed, StatusCancelled:
		return !cfg.KeepFailed
	}
	return true
}
