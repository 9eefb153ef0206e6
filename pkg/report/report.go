// Package report renders the per-source statistics table as a CSV artifact.
// The same rows also land in the SQL store; the CSV exists so the table can
// be opened without any tooling.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/merge"
)

var header = []string{
	"file", "total_points", "points_with_timestamps", "valid_points",
	"mapped_points", "remark", "color", "color_name",
	"creation_time", "modification_time", "file_size", "sha256",
}

// WriteCSV writes one row per source plus a trailing summary record with the
// run-level totals.
func WriteCSV(path string, rows []merge.Statistics, summary merge.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create statistics file %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write statistics header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.File,
			strconv.Itoa(row.TotalPoints),
			strconv.Itoa(row.PointsWithTimestamps),
			strconv.Itoa(row.ValidPoints),
			strconv.Itoa(row.MappedPoints),
			row.Remark,
			row.Color,
			row.ColorName,
			formatTime(row.Meta.CreationTime),
			formatTime(row.Meta.ModificationTime),
			strconv.FormatInt(row.Meta.Size, 10),
			row.Meta.SHA256,
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("write statistics row for %s: %w", row.File, err)
		}
	}

	totals := []string{
		"TOTAL", "", "", strconv.Itoa(summary.TotalValidPoints),
		strconv.Itoa(summary.TotalMappedPoints), "", "", "", "", "", "", "",
	}
	if err := w.Write(totals); err != nil {
		f.Close()
		return fmt.Errorf("write statistics totals: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush statistics file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close statistics file: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
