package instrument

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"select-plus/internal/store"
)

// CleanupOldEvents deletes events older than retentionDays from the _events table.
func CleanupOldEvents(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int) (int64, error) {
	pb := dialect.NewParamBuilder()
	n, err := store.Exec(ctx, db, "DELETE FROM _events WHERE "+dialect.OlderThanExpr("created_at", pb, retentionDays), pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("event cleanup: %w", err)
	}
	return n, nil
}

// RunCleanup deletes expired events once at startup and then every interval
// until ctx is done.
func RunCleanup(ctx context.Context, db *sql.DB, dialect store.Dialect, retentionDays int, interval time.Duration) {
	if retentionDays <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := CleanupOldEvents(ctx, db, dialect, retentionDays)
		if err != nil {
			log.Printf("ERROR: %v", err)
		} else if n > 0 {
			log.Printf("Event cleanup: deleted %d old events", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
