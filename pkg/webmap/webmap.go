// Package webmap renders the merged marker tree into a self-contained
// interactive HTML map, and can optionally serve it over localhost with a QR
// code so the result opens on a phone without file juggling.
//
// The renderer is a pure sink: it receives finished (lat, lon, name, color,
// remark, description) tuples and never inspects the merge itself.
package webmap

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/merge"
)

//go:embed map.html.tmpl
var content embed.FS

// Point is one rendered marker.
type Point struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Remark      string  `json:"remark"`
	Description string  `json:"description"`
}

// Build flattens the merged document into render tuples, resolving each
// placemark's style reference to its color and remark.
func Build(doc merge.Document, sources []merge.Source) []Point {
	colorByStyle := make(map[string]string, len(sources))
	remarkByStyle := make(map[string]string, len(sources))
	for _, s := range sources {
		colorByStyle[s.Name] = s.Color.Hex
		remarkByStyle[s.Name] = s.Remark
	}

	points := make([]Point, 0, len(doc.Placemarks))
	for _, p := range doc.Placemarks {
		points = append(points, Point{
			Lat:         p.Lat,
			Lon:         p.Lon,
			Name:        p.Name,
			Color:       colorByStyle[p.StyleID],
			Remark:      remarkByStyle[p.StyleID],
			Description: p.Description,
		})
	}
	return points
}

// Render writes the interactive map HTML to path.
func Render(path string, points []Point) error {
	tmpl, err := template.ParseFS(content, "map.html.tmpl")
	if err != nil {
		return fmt.Errorf("parse map template: %w", err)
	}

	payload, err := json.Marshal(points)
	if err != nil {
		return fmt.Errorf("encode map points: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create map file %s: %w", path, err)
	}
	data := struct {
		Points template.JS
		Count  int
	}{Points: template.JS(payload), Count: len(points)}
	if err := tmpl.Execute(f, data); err != nil {
		f.Close()
		return fmt.Errorf("render map: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close map file %s: %w", path, err)
	}
	return nil
}

// Serve exposes the working directory over localhost HTTP until ctx is
// cancelled and returns the URL of the rendered map.  Preview only; there is
// no TLS surface here on purpose.
func Serve(ctx context.Context, dir, mapFile string, port int, logf func(string, ...any)) (string, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return "", fmt.Errorf("listen on port %d: %w", port, err)
	}

	server := &http.Server{Handler: http.FileServer(http.Dir(dir))}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			logf("map preview server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	url := fmt.Sprintf("http://%s/%s", listener.Addr().String(), mapFile)
	logf("map preview at %s", url)
	return url, nil
}

// WriteQR encodes the preview URL into a PNG so the map opens by pointing a
// phone camera at the terminal-adjacent image.
func WriteQR(url, path string) error {
	if err := qrcode.WriteFile(url, qrcode.Medium, 256, path); err != nil {
		return fmt.Errorf("write QR %s: %w", path, err)
	}
	return nil
}
