package kmlstream

import (
	"strings"
	"testing"
	"time"
)

const kmlHeader = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>`

const kmlFooter = `</Document></kml>`

// TestExtractRetainedPoint checks the happy path: counters, the remark
// prefix, and exact coordinate extraction from the first two tokens.
func TestExtractRetainedPoint(t *testing.T) {
	doc := kmlHeader + `
<Placemark>
  <name>Pt1</name>
  <TimeStamp><when>2024-01-01T12:00:00Z</when></TimeStamp>
  <Point><coordinates>10.0,20.0,0</coordinates></Point>
</Placemark>` + kmlFooter

	res, err := Extract(strings.NewReader(doc), "Case A", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.TotalPoints != 1 || res.PointsWithTimestamps != 1 || len(res.Points) != 1 {
		t.Fatalf("counters = %d/%d/%d, want 1/1/1",
			res.TotalPoints, res.PointsWithTimestamps, len(res.Points))
	}

	p := res.Points[0]
	if p.Name != "(Case A) - Pt1" {
		t.Errorf("name = %q, want remark prefix", p.Name)
	}
	if p.Lon != 10.0 || p.Lat != 20.0 {
		t.Errorf("coordinates = %v,%v, want 10,20", p.Lon, p.Lat)
	}
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !p.HasWhen || !p.When.Equal(want) {
		t.Errorf("timestamp = %v (has=%v), want %v", p.When, p.HasWhen, want)
	}
}

// TestExtractMissingCoordinates keeps the placemark in "total points seen"
// but nowhere else.
func TestExtractMissingCoordinates(t *testing.T) {
	doc := kmlHeader + `<Placemark><name>NoCoords</name></Placemark>` + kmlFooter

	res, err := Extract(strings.NewReader(doc), "B", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.TotalPoints != 1 || res.PointsWithTimestamps != 0 || len(res.Points) != 0 {
		t.Fatalf("counters = %d/%d/%d, want 1/0/0",
			res.TotalPoints, res.PointsWithTimestamps, len(res.Points))
	}
}

// TestExtractCoordinateEdgeCases covers too-few and non-numeric component
// handling.
func TestExtractCoordinateEdgeCases(t *testing.T) {
	tests := []struct {
		coords string
		valid  bool
	}{
		{"10.0,20.0", true},
		{"10.0,20.0,55.5", true},
		{" 10.0 , 20.0 ", true},
		{"10.0", false},
		{"abc,def", false},
		{"", false},
	}
	for _, tc := range tests {
		doc := kmlHeader +
			`<Placemark><Point><coordinates>` + tc.coords + `</coordinates></Point></Placemark>` +
			kmlFooter
		res, err := Extract(strings.NewReader(doc), "r", nil)
		if err != nil {
			t.Fatalf("Extract(%q): %v", tc.coords, err)
		}
		if got := len(res.Points) == 1; got != tc.valid {
			t.Errorf("coords %q retained = %v, want %v", tc.coords, got, tc.valid)
		}
	}
}

// TestExtractDescriptionRecovery checks the gated description scan: markup
// is stripped, and the embedded instant is recovered when no explicit
// TimeStamp exists.
func TestExtractDescriptionRecovery(t *testing.T) {
	doc := kmlHeader + `
<Placemark>
  <name>Pt</name>
  <description><![CDATA[<b>UTC 2024-01-02 03:04:05+00:00</b>]]></description>
  <Point><coordinates>1.5,2.5</coordinates></Point>
</Placemark>` + kmlFooter

	res, err := Extract(strings.NewReader(doc), "r", nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.PointsWithTimestamps != 1 || len(res.Points) != 1 {
		t.Fatalf("counters = %d with timestamps, %d points, want 1/1",
			res.PointsWithTimestamps, len(res.Points))
	}

	p := res.Points[0]
	if p.Description != "UTC 2024-01-02 03:04:05+00:00" {
		t.Errorf("description = %q, markup not stripped", p.Description)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if !p.When.Equal(want) {
		t.Errorf("timestamp = %v, want %v", p.When, want)
	}
}

// TestExtractMalformed verifies that a decode failure surfaces the error but
// keeps the counts accumulated before it.
func TestExtractMalformed(t *testing.T) {
	doc := kmlHeader + `
<Placemark><name>OK</name><Point><coordinates>1,2</coordinates></Point></Placemark>
<Placemark><name>Broken`

	res, err := Extract(strings.NewReader(doc), "r", nil)
	if err == nil {
		t.Fatalf("Extract accepted truncated XML")
	}
	if res.TotalPoints != 1 || len(res.Points) != 1 {
		t.Fatalf("partial counts = %d/%d, want 1/1", res.TotalPoints, len(res.Points))
	}
}

func TestCleanTags(t *testing.T) {
	tests := []struct{ in, want string }{
		{"<b>bold</b>", "bold"},
		{"no markup", "no markup"},
		{"<a href='x'>link</a> tail", "link tail"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := CleanTags(tc.in); got != tc.want {
			t.Errorf("CleanTags(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCountPlacemarks(t *testing.T) {
	doc := kmlHeader +
		`<Placemark/><Placemark><name>x</name></Placemark>` + kmlFooter
	n, err := CountPlacemarks(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("CountPlacemarks: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountPlacemarks = %d, want 2", n)
	}
}
