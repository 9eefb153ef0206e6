package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/fileintegrity"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/merge"
)

// TestWriteCSV checks the column layout, one row per source, and the
// trailing totals record.
func TestWriteCSV(t *testing.T) {
	rows := []merge.Statistics{
		{
			File:                 "a.kml",
			TotalPoints:          3,
			PointsWithTimestamps: 2,
			ValidPoints:          2,
			MappedPoints:         2,
			Remark:               "walk",
			Color:                "#FF0000",
			ColorName:            "Red",
			Meta: fileintegrity.Snapshot{
				CreationTime:     time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
				ModificationTime: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
				Size:             1234,
				SHA256:           "deadbeef",
			},
		},
		{File: "b.kml", TotalPoints: 1, Remark: "drive", Color: "#0000FF", ColorName: "Blue"},
	}
	summary := merge.Summary{TotalValidPoints: 2, TotalMappedPoints: 2}

	path := filepath.Join(t.TempDir(), "KML_Statistics.csv")
	if err := WriteCSV(path, rows, summary); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	if len(records) != 4 { // header + 2 rows + totals
		t.Fatalf("records = %d, want 4", len(records))
	}
	if records[0][0] != "file" || records[0][11] != "sha256" {
		t.Errorf("header = %v", records[0])
	}

	a := records[1]
	if a[0] != "a.kml" || a[1] != "3" || a[2] != "2" || a[3] != "2" || a[4] != "2" {
		t.Errorf("row A counters = %v", a[:5])
	}
	if a[5] != "walk" || a[6] != "#FF0000" || a[7] != "Red" {
		t.Errorf("row A identity = %v", a[5:8])
	}
	if a[8] != "2024-05-01T08:00:00Z" || a[10] != "1234" || a[11] != "deadbeef" {
		t.Errorf("row A metadata = %v", a[8:])
	}

	b := records[2]
	if b[8] != "" || b[9] != "" {
		t.Errorf("empty snapshot should render empty times, got %v", b[8:10])
	}

	totals := records[3]
	if totals[0] != "TOTAL" || totals[3] != "2" || totals[4] != "2" {
		t.Errorf("totals = %v", totals)
	}
}
