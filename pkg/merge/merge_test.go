package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/palette"
)

const kmlA = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
<Placemark>
  <name>Pt1</name>
  <TimeStamp><when>2024-01-01T12:00:00Z</when></TimeStamp>
  <Point><coordinates>10.0,20.0,0</coordinates></Point>
</Placemark>
</Document></kml>`

const kmlB = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
<Placemark><name>NoCoords</name></Placemark>
</Document></kml>`

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func makeSources(t *testing.T, dir string, names []string) []Source {
	t.Helper()
	assignments, err := palette.Assign(names)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	sources := make([]Source, len(assignments))
	for i, a := range assignments {
		sources[i] = Source{
			Path:   filepath.Join(dir, a.File),
			Name:   a.File,
			Remark: "remark " + a.File,
			Color:  a.Color,
		}
	}
	return sources
}

// TestRunTwoSources is the reference scenario: source A contributes one
// fully-formed placemark, source B one placemark without coordinates.  The
// merged document must hold exactly A's point, and both sources get a
// statistics row with the expected counters.
func TestRunTwoSources(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.kml", kmlA)
	writeFixture(t, dir, "b.kml", kmlB)

	sources := makeSources(t, dir, []string{"a.kml", "b.kml"})
	doc, stats, summary, err := Run(context.Background(), dir, sources)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(doc.Styles) != 2 {
		t.Fatalf("styles = %d, want 2", len(doc.Styles))
	}
	if len(doc.Placemarks) != 1 {
		t.Fatalf("placemarks = %d, want 1", len(doc.Placemarks))
	}
	p := doc.Placemarks[0]
	if p.StyleID != "a.kml" {
		t.Errorf("placemark style = %q, want a.kml", p.StyleID)
	}
	if p.Name != "(remark a.kml) - Pt1" {
		t.Errorf("placemark name = %q", p.Name)
	}
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !p.HasWhen || !p.When.Equal(want) {
		t.Errorf("placemark timestamp = %v (has=%v), want %v", p.When, p.HasWhen, want)
	}

	if len(stats) != 2 {
		t.Fatalf("stats rows = %d, want 2", len(stats))
	}
	a, b := stats[0], stats[1]
	if a.File != "a.kml" || a.TotalPoints != 1 || a.ValidPoints != 1 || a.PointsWithTimestamps != 1 {
		t.Errorf("row A = %+v", a)
	}
	if b.File != "b.kml" || b.TotalPoints != 1 || b.ValidPoints != 0 || b.PointsWithTimestamps != 0 {
		t.Errorf("row B = %+v", b)
	}
	if a.MappedPoints != a.ValidPoints || b.MappedPoints != b.ValidPoints {
		t.Errorf("mapped points diverged from valid points: %+v %+v", a, b)
	}
	if a.Color != "#FF0000" || a.ColorName != "Red" {
		t.Errorf("row A identity = %s %s", a.Color, a.ColorName)
	}
	if a.Meta.SHA256 == "" || a.Meta.Size == 0 {
		t.Errorf("row A metadata missing: %+v", a.Meta)
	}

	if summary.TotalValidPoints != 1 || summary.TotalMappedPoints != 1 {
		t.Errorf("summary = %+v, want 1/1", summary)
	}

	// Every placemark must reference a declared style.
	declared := make(map[string]bool)
	for _, s := range doc.Styles {
		declared[s.ID] = true
	}
	for _, p := range doc.Placemarks {
		if !declared[p.StyleID] {
			t.Errorf("placemark references unknown style %q", p.StyleID)
		}
	}
}

// TestRunInvariants checks the counter inequalities hold for a mixed file.
func TestRunInvariants(t *testing.T) {
	dir := t.TempDir()
	mixed := `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
<Placemark><Point><coordinates>1,2</coordinates></Point></Placemark>
<Placemark><name>skip</name></Placemark>
<Placemark>
  <TimeStamp><when>2024-03-01T00:00:00Z</when></TimeStamp>
  <Point><coordinates>3,4</coordinates></Point>
</Placemark>
</Document></kml>`
	writeFixture(t, dir, "a.kml", mixed)
	writeFixture(t, dir, "b.kml", kmlB)

	_, stats, _, err := Run(context.Background(), dir, makeSources(t, dir, []string{"a.kml", "b.kml"}))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, row := range stats {
		if row.ValidPoints > row.TotalPoints {
			t.Errorf("%s: valid %d > total %d", row.File, row.ValidPoints, row.TotalPoints)
		}
		if row.PointsWithTimestamps > row.TotalPoints {
			t.Errorf("%s: timestamps %d > total %d", row.File, row.PointsWithTimestamps, row.TotalPoints)
		}
	}
}

// TestRunAbortsOnChangedSource forces the post-extraction digest re-check to
// report a mismatch and verifies the whole run dies on it: Run returns
// IntegrityError and hands back no document, statistics or totals, so the
// caller has nothing to write out.
func TestRunAbortsOnChangedSource(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.kml", kmlA)
	writeFixture(t, dir, "b.kml", kmlB)

	orig := verifyDigest
	verifyDigest = func(path, expected string) (bool, error) {
		if filepath.Base(path) == "b.kml" {
			return false, nil
		}
		return true, nil
	}
	defer func() { verifyDigest = orig }()

	doc, stats, summary, err := Run(context.Background(), dir, makeSources(t, dir, []string{"a.kml", "b.kml"}))

	var integrityErr *IntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("Run err = %v, want IntegrityError", err)
	}
	if integrityErr.File != "b.kml" {
		t.Errorf("IntegrityError names %q, want b.kml", integrityErr.File)
	}
	if len(doc.Styles) != 0 || len(doc.Placemarks) != 0 {
		t.Errorf("document survived the abort: %d styles, %d placemarks",
			len(doc.Styles), len(doc.Placemarks))
	}
	if stats != nil {
		t.Errorf("statistics survived the abort: %+v", stats)
	}
	if summary != (Summary{}) {
		t.Errorf("summary survived the abort: %+v", summary)
	}
}

// TestRunExcludesSymlink verifies the sandbox: a symlinked source is dropped
// with no statistics row while the remaining files merge normally.
func TestRunExcludesSymlink(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.kml", kmlA)
	writeFixture(t, dir, "b.kml", kmlB)
	target := writeFixture(t, dir, "real.kml", kmlA)
	link := filepath.Join(dir, "c.kml")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	sources := makeSources(t, dir, []string{"a.kml", "b.kml", "c.kml"})
	doc, stats, _, err := Run(context.Background(), dir, sources)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("stats rows = %d, want 2 (symlink excluded)", len(stats))
	}
	for _, p := range doc.Placemarks {
		if p.StyleID == "c.kml" {
			t.Fatalf("placemark from excluded symlink source made it into the document")
		}
	}
}

// TestCheckPath covers the traversal and symlink rules directly.
func TestCheckPath(t *testing.T) {
	base := t.TempDir()
	inside := writeFixture(t, base, "in.kml", kmlA)

	outsideDir := t.TempDir()
	outside := writeFixture(t, outsideDir, "out.kml", kmlA)

	if err := CheckPath(base, inside); err != nil {
		t.Errorf("inside path rejected: %v", err)
	}
	if err := CheckPath(base, outside); err == nil {
		t.Errorf("outside path accepted")
	}
	if err := CheckPath(base, filepath.Join(base, "missing.kml")); err == nil {
		t.Errorf("missing path accepted")
	}

	link := filepath.Join(base, "link.kml")
	if err := os.Symlink(inside, link); err == nil {
		if err := CheckPath(base, link); err == nil {
			t.Errorf("symlink accepted")
		}
	}
}
