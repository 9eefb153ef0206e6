// Package palette gives every source file a deterministic visual identity:
// a color drawn from a fixed, ordered ten-entry palette, assigned strictly by
// list position.  The assignment is also persisted as a plain-text legend so
// the mapping survives the process.
package palette

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Color pairs the human name with the hex RGB value written to the legend.
type Color struct {
	Name string
	Hex  string // "#RRGGBB"
}

// Colors is the palette, in assignment order.  The order is part of the
// tool's contract: reruns over the same selection must produce the same
// legend.
var Colors = []Color{
	{"Red", "#FF0000"},
	{"Blue", "#0000FF"},
	{"Yellow", "#FFFF00"},
	{"Green", "#00FF00"},
	{"Orange", "#FFA500"},
	{"Violet", "#EE82EE"},
	{"Pink", "#FFC0CB"},
	{"Purple", "#800080"},
	{"Turquoise", "#40E0D0"},
	{"Cyan", "#00FFFF"},
}

// MaxSources is the hard cap on sources per merge run, bounded by the
// palette size.
const MaxSources = 10

// ARGB renders the color the way KML styles want it: full opacity prefixed
// to the RGB value, "#" dropped.
func (c Color) ARGB() string {
	return "ff" + strings.TrimPrefix(c.Hex, "#")
}

// Assignment binds one source file to its palette color.
type Assignment struct {
	File  string
	Color Color
}

// Assign maps files to palette colors by position.  It fails cleanly when
// more sources are supplied than the palette holds, returning nil so no
// partial mapping can leak out.
func Assign(files []string) ([]Assignment, error) {
	if len(files) > len(Colors) {
		return nil, fmt.Errorf("cannot assign colors to %d sources: palette holds %d", len(files), len(Colors))
	}
	assignments := make([]Assignment, len(files))
	for i, f := range files {
		assignments[i] = Assignment{File: f, Color: Colors[i]}
	}
	return assignments, nil
}

// WriteLegend persists the file→color mapping, one line per source:
//
//	filename = #RRGGBB (ColorName)
func WriteLegend(path string, assignments []Assignment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create legend %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	for _, a := range assignments {
		fmt.Fprintf(w, "%s = %s (%s)\n", a.File, a.Color.Hex, a.Color.Name)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write legend %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close legend %s: %w", path, err)
	}
	return nil
}
