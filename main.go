// UFEDKMLstacker merges several forensic KML exports into one colored marker
// document, a per-source statistics table, and an interactive map.
//
// The pipeline per run: list the candidate files, take the operator's
// selection and remarks, assign every source a palette color, stream-extract
// each file concurrently, verify no input changed mid-run, then write the
// merged KML, legend, statistics and map in one single-writer pass.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/database"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/kmlout"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/logger"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/menu"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/merge"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/palette"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/report"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/webmap"
)

var workDir = flag.String("dir", ".", "Working directory holding the source .kml files and all output artifacts")
var mergedName = flag.String("merged", "Merged_Colored.kml", "File name of the merged KML output")
var legendName = flag.String("legend", "color_mapping.txt", "File name of the color legend")
var statsName = flag.String("stats", "KML_Statistics.csv", "File name of the statistics table")
var mapName = flag.String("map", "interactive_map.html", "File name of the interactive map")
var logName = flag.String("log", "UFEDKMLstacker.log", "File name of the run log")
var dbType = flag.String("db-type", "sqlite", "Statistics store driver: sqlite, genji, or pgx (PostgreSQL)")
var dbPath = flag.String("db-path", "", "Path to the statistics database file (sqlite and genji drivers)")
var dbConn = flag.String("db-conn", "", "Raw PostgreSQL DSN, overrides the db-host family (pgx driver)")
var dbHost = flag.String("db-host", "127.0.0.1", "Database host (pgx driver)")
var dbPort = flag.Int("db-port", 5432, "Database port (pgx driver)")
var dbUser = flag.String("db-user", "postgres", "Database user (pgx driver)")
var dbPass = flag.String("db-pass", "", "Database password (pgx driver)")
var dbName = flag.String("db-name", "UFEDKMLstacker", "Database name (pgx driver)")
var pgSSLMode = flag.String("pg-ssl-mode", "prefer", "PostgreSQL SSL mode: disable, allow, prefer, require, verify-ca, or verify-full")
var noDB = flag.Bool("no-db", false, "Skip the statistics store; the CSV table is still written")
var selection = flag.String("select", "", "Comma-separated file numbers, e.g. \"1,2,5\"; skips the interactive menu")
var remarkList = flag.String("remarks", "", "Comma-separated remarks matching the -select order; defaults to the file names")
var assumeYes = flag.Bool("yes", false, "Overwrite an existing merged file without asking")
var serve = flag.Bool("serve", false, "Serve the interactive map over localhost and write a share QR code")
var servePort = flag.Int("port", 8765, "Port for the map preview server")
var showVersion = flag.Bool("version", false, "Show the application version")

var CompileVersion = "dev"

// Exit codes distinguish a clean completion, a user-initiated abort, and an
// integrity-check abort.
const (
	exitOK        = 0
	exitOutput    = 1
	exitIntegrity = 2
	exitInterrupt = 130
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("UFEDKMLstacker version: %s\n", CompileVersion)
		os.Exit(exitOK)
	}

	if err := logger.Tee(filepath.Join(*workDir, *logName)); err != nil {
		log.Printf("log file unavailable, console only: %v", err)
	}

	// Ctrl-C is honoured between pipeline stages: it ends the whole run,
	// never a single file.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	m := menu.New(os.Stdin, os.Stdout)
	interactive := strings.TrimSpace(*selection) == ""

	for {
		code, again := runOnce(ctx, m, interactive)
		if !again {
			os.Exit(code)
		}
	}
}

// runOnce executes one full pipeline pass.  again reports whether the
// interactive menu should come back around.
func runOnce(ctx context.Context, m *menu.Menu, interactive bool) (code int, again bool) {
	entries, err := menu.ListKMLFiles(*workDir, *mergedName)
	if err != nil {
		log.Printf("cannot list KML files: %v", err)
		return exitOutput, false
	}
	if len(entries) == 0 {
		fmt.Println("No KML files found in the working directory.")
		return exitOK, false
	}

	var files []string
	if interactive {
		m.ShowHeader(CompileVersion)
		m.ShowFiles(entries)
		files, err = m.Select(ctx, entries)
	} else {
		var idx []int
		idx, err = menu.ParseSelection(*selection, len(entries))
		if err == nil {
			for _, i := range idx {
				files = append(files, entries[i].Name)
			}
		}
	}
	switch {
	case errors.Is(err, menu.ErrExit):
		fmt.Println("Exiting. Goodbye!")
		return exitOK, false
	case errors.Is(err, context.Canceled):
		return interrupted()
	case err != nil:
		log.Printf("selection: %v", err)
		return exitOutput, false
	}

	mergedPath := filepath.Join(*workDir, *mergedName)
	if !*assumeYes {
		ok, err := m.ConfirmOverwrite(ctx, mergedPath)
		if errors.Is(err, context.Canceled) {
			return interrupted()
		}
		if err != nil {
			log.Printf("overwrite prompt: %v", err)
			return exitOutput, false
		}
		if !ok {
			fmt.Println("File will not be overwritten.")
			return exitOK, interactive
		}
	}

	remarks, err := collectRemarks(ctx, m, files, interactive)
	if errors.Is(err, context.Canceled) {
		return interrupted()
	}
	if err != nil {
		log.Printf("remarks: %v", err)
		return exitOutput, false
	}

	assignments, err := palette.Assign(files)
	if err != nil {
		log.Printf("color assignment: %v", err)
		return exitOutput, false
	}

	sources := make([]merge.Source, len(assignments))
	for i, a := range assignments {
		sources[i] = merge.Source{
			Path:   filepath.Join(*workDir, a.File),
			Name:   a.File,
			Remark: remarks[a.File],
			Color:  a.Color,
		}
	}

	started := time.Now()
	doc, stats, summary, err := merge.Run(ctx, *workDir, sources)
	var integrityErr *merge.IntegrityError
	switch {
	case errors.As(err, &integrityErr):
		log.Printf("aborting before any output is written: %v", err)
		return exitIntegrity, false
	case errors.Is(err, context.Canceled):
		return interrupted()
	case err != nil:
		log.Printf("merge: %v", err)
		return exitOutput, false
	}

	if code, ok := writeArtifacts(ctx, doc, sources, assignments, stats, summary, started, mergedPath); !ok {
		return code, false
	}

	fmt.Println("Process completed. Details are in the log, legend and statistics table.")

	if *serve {
		fmt.Println("Serving the interactive map; press Ctrl-C to stop.")
		<-ctx.Done()
		return exitOK, false
	}
	if !interactive {
		return exitOK, false
	}

	// Brief pause, then back to the menu, unless interrupted meanwhile.
	select {
	case <-ctx.Done():
		return interrupted()
	case <-time.After(3 * time.Second):
	}
	return exitOK, true
}

// writeArtifacts is the single-writer output stage.  Any failure here is
// fatal; partial files may remain behind but are logged as incomplete.
func writeArtifacts(
	ctx context.Context,
	doc merge.Document,
	sources []merge.Source,
	assignments []palette.Assignment,
	stats []merge.Statistics,
	summary merge.Summary,
	started time.Time,
	mergedPath string,
) (int, bool) {
	if err := kmlout.Write(mergedPath, doc); err != nil {
		log.Printf("merged output incomplete: %v", err)
		return exitOutput, false
	}
	log.Printf("merged KML saved as %s (%d placemarks)", mergedPath, len(doc.Placemarks))

	if err := palette.WriteLegend(filepath.Join(*workDir, *legendName), assignments); err != nil {
		log.Printf("legend incomplete: %v", err)
		return exitOutput, false
	}

	statsPath := filepath.Join(*workDir, *statsName)
	if err := report.WriteCSV(statsPath, stats, summary); err != nil {
		log.Printf("statistics table incomplete: %v", err)
		return exitOutput, false
	}
	log.Printf("statistics saved in %s", statsPath)

	if !*noDB {
		if err := saveStatistics(ctx, stats, summary, started, mergedPath); err != nil {
			log.Printf("statistics store incomplete: %v", err)
			return exitOutput, false
		}
	}

	mapPath := filepath.Join(*workDir, *mapName)
	if err := webmap.Render(mapPath, webmap.Build(doc, sources)); err != nil {
		log.Printf("interactive map incomplete: %v", err)
		return exitOutput, false
	}
	log.Printf("interactive map saved as %s", mapPath)

	if *serve {
		url, err := webmap.Serve(ctx, *workDir, *mapName, *servePort, log.Printf)
		if err != nil {
			log.Printf("map preview unavailable: %v", err)
		} else if err := webmap.WriteQR(url, filepath.Join(*workDir, "map_qr.png")); err != nil {
			log.Printf("share QR unavailable: %v", err)
		}
	}

	return exitOK, true
}

func saveStatistics(ctx context.Context, stats []merge.Statistics, summary merge.Summary, started time.Time, mergedPath string) error {
	db, err := database.New(database.Config{
		DBType:    *dbType,
		DBPath:    dbFilePath(),
		DBConn:    *dbConn,
		DBHost:    *dbHost,
		DBPort:    *dbPort,
		DBUser:    *dbUser,
		DBPass:    *dbPass,
		DBName:    *dbName,
		PGSSLMode: *pgSSLMode,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	run := database.Run{
		RunID:      started.UTC().Format("20060102T150405.000000000"),
		StartedAt:  started,
		FinishedAt: time.Now(),
		MergedFile: mergedPath,
	}
	return db.SaveRun(ctx, run, stats, summary)
}

// dbFilePath anchors the default embedded database next to the artifacts.
func dbFilePath() string {
	if *dbPath != "" {
		return *dbPath
	}
	return filepath.Join(*workDir, "kml_statistics."+strings.ToLower(strings.TrimSpace(*dbType)))
}

// collectRemarks gathers remarks interactively or derives them from flags.
// Non-interactive runs without -remarks fall back to the file name stem so
// every source still carries a non-empty remark.
func collectRemarks(ctx context.Context, m *menu.Menu, files []string, interactive bool) (map[string]string, error) {
	if interactive {
		return m.Remarks(ctx, files)
	}
	remarks := make(map[string]string, len(files))
	given := strings.Split(*remarkList, ",")
	for i, f := range files {
		remark := ""
		if i < len(given) {
			remark = strings.TrimSpace(given[i])
		}
		if remark == "" {
			remark = strings.TrimSuffix(f, filepath.Ext(f))
		}
		remarks[f] = remark
	}
	return remarks, nil
}

func interrupted() (int, bool) {
	fmt.Println("\nProcess interrupted by user. Exiting gracefully...")
	log.Printf("process interrupted by user")
	return exitInterrupt, false
}
