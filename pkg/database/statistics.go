package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/merge"
)

// Run describes one completed merge for the history table.
type Run struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	MergedFile string
}

// SaveRun stores the run summary and one row per source.  The insert order
// matches the selection order so the table reads like the report.
func (db *Database) SaveRun(ctx context.Context, run Run, rows []merge.Statistics, summary merge.Summary) error {
	runStmt := fmt.Sprintf(`INSERT INTO merge_runs
(run_id, started_at, finished_at, merged_file, source_count, total_valid_points, total_mapped_points)
VALUES (%s, %s, %s, %s, %s, %s, %s)`,
		placeholder(db.Driver, 1), placeholder(db.Driver, 2), placeholder(db.Driver, 3),
		placeholder(db.Driver, 4), placeholder(db.Driver, 5), placeholder(db.Driver, 6),
		placeholder(db.Driver, 7))
	if _, err := db.DB.ExecContext(ctx, runStmt,
		run.RunID, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.MergedFile,
		int64(len(rows)), int64(summary.TotalValidPoints), int64(summary.TotalMappedPoints)); err != nil {
		return fmt.Errorf("insert merge run: %w", err)
	}

	rowStmt := fmt.Sprintf(`INSERT INTO source_statistics
(run_id, file, total_points, points_with_timestamps, valid_points, mapped_points,
 remark, color, color_name, creation_time, modification_time, file_size, sha256)
VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		placeholder(db.Driver, 1), placeholder(db.Driver, 2), placeholder(db.Driver, 3),
		placeholder(db.Driver, 4), placeholder(db.Driver, 5), placeholder(db.Driver, 6),
		placeholder(db.Driver, 7), placeholder(db.Driver, 8), placeholder(db.Driver, 9),
		placeholder(db.Driver, 10), placeholder(db.Driver, 11), placeholder(db.Driver, 12),
		placeholder(db.Driver, 13))
	for _, row := range rows {
		if _, err := db.DB.ExecContext(ctx, rowStmt,
			run.RunID, row.File,
			int64(row.TotalPoints), int64(row.PointsWithTimestamps),
			int64(row.ValidPoints), int64(row.MappedPoints),
			row.Remark, row.Color, row.ColorName,
			formatTime(row.Meta.CreationTime), formatTime(row.Meta.ModificationTime),
			row.Meta.Size, row.Meta.SHA256); err != nil {
			return fmt.Errorf("insert statistics for %s: %w", row.File, err)
		}
	}
	return nil
}

// formatTime keeps empty snapshots readable as empty strings instead of the
// zero-time sentinel.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
