package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/imgbatch/internal/model"
)

// Repository stores collected usage reports.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// SaveReport inserts a usage report. Redelivered reports with a known ID are ignored.
func (r *Repository) SaveReport(ctx context.Context, report model.UsageReport) error {
	query := `
		INSERT INTO usage_reports (id, actor_id, anonymous, item_count, total_duration_ms, total_bytes, reported_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.db.ExecContext(
		ctx, query,
		report.ID, report.ActorID, report.Anonymous, report.ItemCount,
		report.TotalDurationMs, report.TotalBytes, time.UnixMilli(report.Timestamp).UTC(),
	)
	if err != nil {
		return fmt.Errorf("save: failed to save usage report: %w", err)
	}

	return nil
}
