// Package kmlstream reads placemarks out of a KML document as a forward-only
// token stream.  Memory stays bounded by one placemark at a time no matter
// how large the file is, which matters for multi-hundred-megabyte UFED
// exports.
package kmlstream

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/timestamp"
)

// Point is one retained geopoint.  Lon/Lat are the first two comma-separated
// numeric tokens of the source coordinates text, exactly as written.
type Point struct {
	Lon         float64
	Lat         float64
	Name        string
	Description string
	When        time.Time
	HasWhen     bool
}

// Result carries the per-file counters alongside the retained points.
// TotalPoints counts every placemark seen; points without usable coordinates
// are dropped silently and appear in no other counter.
type Result struct {
	TotalPoints          int
	PointsWithTimestamps int
	Points               []Point
}

// reTags strips HTML-like markup: anything matching <...> is deleted, not
// decoded.  Deliberately crude — UFED descriptions carry presentation tags,
// never meaningful angle brackets.
var reTags = regexp.MustCompile(`<[^>]*>`)

// CleanTags removes markup from a description.
func CleanTags(s string) string {
	return reTags.ReplaceAllString(s, "")
}

// ExtractFile streams one source file.  Parse and read errors are caught at
// file granularity: whatever was accumulated before the failure is returned
// together with the error so the caller can log it and keep processing the
// remaining sources.
func ExtractFile(path, remark string, logf func(string, ...any)) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Extract(f, remark, logf)
}

// Extract is the stream worker behind ExtractFile, split out so tests can
// feed documents from memory.
func Extract(r io.Reader, remark string, logf func(string, ...any)) (Result, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	dec := xml.NewDecoder(r)

	var (
		res         Result
		inPlacemark bool
		inStamp     bool
		name        string
		desc        string
		when        string
		coords      string
		hasCoords   bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, fmt.Errorf("XML decode: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "Placemark":
				inPlacemark, inStamp = true, false
				name, desc, when, coords, hasCoords = "", "", "", "", false
			case "name":
				if inPlacemark {
					_ = dec.DecodeElement(&name, &el)
				}
			case "description":
				if inPlacemark {
					_ = dec.DecodeElement(&desc, &el)
				}
			case "TimeStamp":
				inStamp = inPlacemark
			case "when":
				if inStamp {
					_ = dec.DecodeElement(&when, &el)
				}
			case "coordinates":
				if inPlacemark {
					_ = dec.DecodeElement(&coords, &el)
					hasCoords = true
				}
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "TimeStamp":
				inStamp = false
			case "Placemark":
				if !inPlacemark {
					continue
				}
				inPlacemark = false
				res.TotalPoints++

				display := fmt.Sprintf("(%s) - %s", remark, name)
				cleaned := CleanTags(desc)

				// Recovery order: explicit <when>, then the display
				// name, then the cleaned description.  First hit wins.
				ts, ok := timestamp.Normalize(when)
				if !ok {
					ts, ok = timestamp.FromText(display)
				}
				if !ok {
					ts, ok = timestamp.FromText(cleaned)
				}
				if ok {
					res.PointsWithTimestamps++
				}

				lon, lat, valid := splitCoordinates(coords)
				if !hasCoords || !valid {
					logf("skip placemark %q: no usable coordinates", name)
					continue
				}

				res.Points = append(res.Points, Point{
					Lon:         lon,
					Lat:         lat,
					Name:        display,
					Description: cleaned,
					When:        ts,
					HasWhen:     ok,
				})
			}
		}
	}

	return res, nil
}

// splitCoordinates needs at least two comma-separated numeric components;
// a trailing altitude is ignored.
func splitCoordinates(coords string) (lon, lat float64, ok bool) {
	parts := strings.Split(strings.TrimSpace(coords), ",")
	if len(parts) < 2 {
		return 0, 0, false
	}
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLon != nil || errLat != nil {
		return 0, 0, false
	}
	return lon, lat, true
}

// CountPlacemarks streams a document and reports how many placemarks it
// holds.  The file listing uses this for the per-file summary; errors simply
// read as zero placemarks there.
func CountPlacemarks(r io.Reader) (int, error) {
	dec := xml.NewDecoder(r)
	n := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("XML decode: %w", err)
		}
		if el, ok := tok.(xml.StartElement); ok && el.Name.Local == "Placemark" {
			n++
		}
	}
}
