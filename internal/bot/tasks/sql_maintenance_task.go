package tasks

import (
	"context"
	"fmt"
	"time"
)

const maintenanceTimeout = 5 * time.Minute

// newSQLMaintenanceTask checks the database is reachable, then compacts it.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", SQLMaintenance)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			return fmt.Errorf("database unreachable before maintenance: %w", err)
		}

		start := time.Now()
		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			log.ErrorContext(ctx, "VACUUM failed", "error", err, "duration", time.Since(start))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}
		log.InfoContext(ctx, "Database compacted", "duration", time.Since(start))
		return nil
	}
}
