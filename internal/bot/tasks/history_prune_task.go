package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const pruneTimeout = time.Minute

// newHistoryPruneTask keeps the prompt history bounded to database.max_history_entries.
func newHistoryPruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", HistoryPrune)

	return func(ctx context.Context) error {
		keep := deps.Config.Database.MaxHistoryEntries
		log.InfoContext(ctx, "Starting scheduled history prune task...", "keep", keep)
		startTime := time.Now()

		timeoutCtx, cancel := context.WithTimeout(ctx, pruneTimeout)
		defer cancel()

		removed, err := deps.Store.PruneHistory(timeoutCtx, keep)
		duration := time.Since(startTime)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.WarnContext(ctx, "Timeout pruning prompt history", "duration", duration)
				return fmt.Errorf("history prune timed out: %w", err)
			}
			log.ErrorContext(ctx, "History prune task failed", "error", err, "duration", duration)
			return fmt.Errorf("history prune failed: %w", err)
		}

		log.InfoContext(ctx, "Scheduled history prune task completed", "removed", removed, "duration", duration)
		return nil
	}
}
