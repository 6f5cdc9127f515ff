package history

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/eargollo/hash256/internal/db"
)

// Purge deletes runs older than retentionDays. A non-positive retention keeps
// everything.
func Purge(ctx context.Context, database *sql.DB, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	n, err := db.PurgeRunsBefore(ctx, database, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("history purged", "runs", n, "before", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
