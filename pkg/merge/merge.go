// Package merge drives the whole stacking pipeline: per-source metadata
// capture, streaming placemark extraction, path sandboxing, and the fold of
// everything into one combined marker tree plus a per-source statistics list.
//
// Sources are extracted concurrently, one goroutine each, and the results
// are gathered back in selection order before the single-threaded fold — we
// share memory by communicating instead of guarding a shared tree with
// locks.
package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/fileintegrity"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/kmlstream"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/logger"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/palette"
)

// Source is one selected input file with its assigned identity.
type Source struct {
	Path   string
	Name   string // base file name, unique within a run
	Remark string
	Color  palette.Color
}

// Statistics is one report row per source.
// MappedPoints currently always equals ValidPoints; the two are tracked as
// separate fields so "what was extracted" and "what is confirmed written"
// can diverge later without a schema change.
type Statistics struct {
	File                 string
	TotalPoints          int
	PointsWithTimestamps int
	ValidPoints          int
	MappedPoints         int
	Remark               string
	Color                string
	ColorName            string
	Meta                 fileintegrity.Snapshot
}

// Style is one per-source style declaration in the merged document.
type Style struct {
	ID   string // source file name
	ARGB string // full-opacity color, "ff" + RRGGBB
}

// Placemark is one retained geopoint carrying its source's style reference.
type Placemark struct {
	StyleID     string
	Lon         float64
	Lat         float64
	Name        string
	Description string
	When        time.Time
	HasWhen     bool
}

// Document is the combined marker tree.  Every placemark references a style
// declared in Styles; styles appear in source selection order.
type Document struct {
	Styles     []Style
	Placemarks []Placemark
}

// Summary holds the run-level totals.
type Summary struct {
	TotalValidPoints  int
	TotalMappedPoints int
}

// IntegrityError marks a hash mismatch between metadata capture and use.
// It aborts the run before any output is written.
type IntegrityError struct {
	File string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed: %s changed after its metadata was captured", e.File)
}

// verifyDigest is the post-extraction hash re-check.  A variable so tests can
// force a deterministic mismatch; the race it guards against cannot be staged
// reliably with real files.
var verifyDigest = fileintegrity.Verify

// sourceResult carries one source's extraction outcome back to the fold.
type sourceResult struct {
	meta      fileintegrity.Snapshot
	extracted kmlstream.Result
	sandboxed bool // path passed the sandbox check
	hashOK    bool
}

// Run processes all selected sources and folds them into the merged document
// and statistics list.  baseDir is the sandbox root: any source resolving
// outside it, or being itself a symlink, is excluded with a warning and gets
// no statistics row.  The only fatal outcomes are context cancellation and
// an integrity mismatch.
func Run(ctx context.Context, baseDir string, sources []Source) (Document, []Statistics, Summary, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return Document{}, nil, Summary{}, fmt.Errorf("resolve base dir: %w", err)
	}

	// One goroutine per source; each writes exactly one result.  The fold
	// below consumes them strictly in selection order, so the document's
	// content is deterministic regardless of which file finishes first.
	results := make([]chan sourceResult, len(sources))
	for i := range sources {
		results[i] = make(chan sourceResult, 1)
		go func(out chan<- sourceResult, src Source) {
			out <- processSource(absBase, src)
		}(results[i], sources[i])
	}

	var (
		doc   Document
		stats []Statistics
		sum   Summary
	)

	// Styles are declared for every selected source up front, in insertion
	// order, so each retained placemark finds its style in the document.
	for _, src := range sources {
		doc.Styles = append(doc.Styles, Style{ID: src.Name, ARGB: src.Color.ARGB()})
	}

	for i, src := range sources {
		var res sourceResult
		select {
		case <-ctx.Done():
			return Document{}, nil, Summary{}, ctx.Err()
		case res = <-results[i]:
		}

		if !res.sandboxed {
			continue
		}
		if !res.hashOK {
			return Document{}, nil, Summary{}, &IntegrityError{File: src.Name}
		}

		valid := len(res.extracted.Points)
		sum.TotalValidPoints += valid
		sum.TotalMappedPoints += valid

		stats = append(stats, Statistics{
			File:                 src.Name,
			TotalPoints:          res.extracted.TotalPoints,
			PointsWithTimestamps: res.extracted.PointsWithTimestamps,
			ValidPoints:          valid,
			MappedPoints:         valid,
			Remark:               src.Remark,
			Color:                src.Color.Hex,
			ColorName:            src.Color.Name,
			Meta:                 res.meta,
		})

		for _, p := range res.extracted.Points {
			doc.Placemarks = append(doc.Placemarks, Placemark{
				StyleID:     src.Name,
				Lon:         p.Lon,
				Lat:         p.Lat,
				Name:        p.Name,
				Description: p.Description,
				When:        p.When,
				HasWhen:     p.HasWhen,
			})
		}
	}

	return doc, stats, sum, nil
}

// processSource handles one file end to end: sandbox check, metadata
// snapshot, streaming extraction, and the post-extraction hash re-check.
// Detail lines buffer in the logger and replay only when the file fails.
func processSource(absBase string, src Source) sourceResult {
	var res sourceResult

	logger.Begin(src.Name)

	if err := CheckPath(absBase, src.Path); err != nil {
		logger.FlushError(src.Name, fmt.Errorf("excluded from merge: %w", err))
		return res
	}
	res.sandboxed = true
	res.hashOK = true

	meta, err := fileintegrity.Take(src.Path)
	if err != nil {
		// Fail soft: the stats row keeps an empty metadata record.
		logger.Append(src.Name, fmt.Sprintf("[%s] metadata capture failed: %v", src.Name, err))
	}
	res.meta = meta

	extracted, parseErr := kmlstream.ExtractFile(src.Path, src.Remark, func(format string, v ...any) {
		logger.Append(src.Name, fmt.Sprintf("[%s] ", src.Name)+fmt.Sprintf(format, v...))
	})
	res.extracted = extracted

	// Re-check the digest after extraction.  A mismatch means the input
	// changed under the tool, which must abort the whole run.
	if meta.SHA256 != "" {
		ok, err := verifyDigest(src.Path, meta.SHA256)
		if err != nil {
			logger.Append(src.Name, fmt.Sprintf("[%s] hash re-check failed: %v", src.Name, err))
			res.hashOK = false
		} else {
			res.hashOK = ok
		}
	}

	switch {
	case !res.hashOK:
		logger.FlushError(src.Name, fmt.Errorf("content hash changed during processing"))
	case parseErr != nil:
		logger.FlushError(src.Name, fmt.Errorf("parse failed, keeping partial counts: %w", parseErr))
	default:
		logger.Success(src.Name, fmt.Sprintf("%d points seen, %d with timestamps, %d valid",
			extracted.TotalPoints, extracted.PointsWithTimestamps, len(extracted.Points)))
	}

	return res
}

// CheckPath enforces the sandbox: the source must resolve, after symlink and
// traversal resolution, to a location inside base, and must not itself be a
// symbolic link.
func CheckPath(base, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("source is a symbolic link")
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	resolvedBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		return fmt.Errorf("resolve base: %w", err)
	}
	rel, err := filepath.Rel(resolvedBase, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %s escapes working directory %s", abs, resolvedBase)
	}
	return nil
}
