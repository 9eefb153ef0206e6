// Package kmlout serialises the merged marker tree into a single KML
// document.  Output goes through a temporary file that is atomically renamed
// into place, so readers never observe a half-written merge.
package kmlout

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/merge"
)

// pushpinIcon is the icon shared by every style; only the color varies.
const pushpinIcon = "http://maps.google.com/mapfiles/kml/pushpin/red-pushpin.png"

// Write streams the document to destPath.
func Write(destPath string, doc merge.Document) error {
	dir := filepath.Dir(destPath)
	tmp, err := os.CreateTemp(dir, "merged-*.kml")
	if err != nil {
		return fmt.Errorf("tmp merged file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	w := bufio.NewWriter(tmp)
	if err := writeDocument(w, doc); err != nil {
		cleanup()
		return fmt.Errorf("write merged KML: %w", err)
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush merged KML: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close merged KML: %w", err)
	}
	if err := replaceFile(tmpPath, destPath); err != nil {
		cleanup()
		return err
	}
	return nil
}

func writeDocument(w *bufio.Writer, doc merge.Document) error {
	fmt.Fprintf(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	fmt.Fprintf(w, "<kml xmlns=\"http://www.opengis.net/kml/2.2\">\n")
	fmt.Fprintf(w, "  <Document>\n")

	for _, s := range doc.Styles {
		fmt.Fprintf(w, "    <Style id=\"%s\">\n", xmlEscape(s.ID))
		fmt.Fprintf(w, "      <IconStyle>\n")
		fmt.Fprintf(w, "        <color>%s</color>\n", s.ARGB)
		fmt.Fprintf(w, "        <Icon><href>%s</href></Icon>\n", pushpinIcon)
		fmt.Fprintf(w, "      </IconStyle>\n")
		fmt.Fprintf(w, "    </Style>\n")
	}

	for _, p := range doc.Placemarks {
		fmt.Fprintf(w, "    <Placemark>\n")
		fmt.Fprintf(w, "      <name>%s</name>\n", xmlEscape(p.Name))
		fmt.Fprintf(w, "      <styleUrl>#%s</styleUrl>\n", xmlEscape(p.StyleID))
		if p.HasWhen {
			fmt.Fprintf(w, "      <TimeStamp><when>%s</when></TimeStamp>\n", p.When.Format(time.RFC3339))
		}
		fmt.Fprintf(w, "      <description>%s</description>\n", xmlEscape(p.Description))
		fmt.Fprintf(w, "      <Point><coordinates>%s,%s</coordinates></Point>\n",
			formatCoord(p.Lon), formatCoord(p.Lat))
		fmt.Fprintf(w, "    </Placemark>\n")
	}

	fmt.Fprintf(w, "  </Document>\n")
	if _, err := fmt.Fprintf(w, "</kml>\n"); err != nil {
		return err
	}
	return w.Flush()
}

// formatCoord prints a coordinate with the shortest plain-decimal
// representation that round-trips the float.  No exponent form: some KML
// consumers choke on 1e-05 where 0.00001 is fine.
func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// xmlEscape escapes a string for XML text nodes.
func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

// replaceFile atomically replaces the destination with the temporary file.
func replaceFile(tmpPath, destPath string) error {
	if err := os.Rename(tmpPath, destPath); err != nil {
		if removeErr := os.Remove(destPath); removeErr != nil && !os.IsNotExist(removeErr) {
			return fmt.Errorf("remove old merged file: %w", removeErr)
		}
		if err := os.Rename(tmpPath, destPath); err != nil {
			return fmt.Errorf("replace merged file: %w", err)
		}
	}
	return nil
}
