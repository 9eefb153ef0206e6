// Package menu drives the interactive terminal flow: listing the available
// source files, reading the merge selection, confirming overwrites, and
// collecting per-file remarks.  Prompts are context-aware so Ctrl-C between
// stages terminates the run cleanly.
package menu

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ot2i7ba/UFEDKMLstacker/pkg/kmlstream"
	"github.com/ot2i7ba/UFEDKMLstacker/pkg/palette"
)

// ErrExit reports that the operator chose to leave the menu.
var ErrExit = errors.New("user exit")

// FileEntry is one selectable source with its quick placemark count.
type FileEntry struct {
	Name       string
	Placemarks int
}

// Menu wraps the terminal streams together with the resolved color theme.
type Menu struct {
	in    *bufio.Reader
	out   io.Writer
	theme theme
}

// New builds a menu over the given streams.  Colors are enabled only when
// out is a TTY and NO_COLOR is unset, so piped output stays readable.
func New(in io.Reader, out io.Writer) *Menu {
	return &Menu{in: bufio.NewReader(in), out: out, theme: resolveTheme(out)}
}

// theme mirrors the lightweight ANSI palette used by the rest of the CLI.
type theme struct {
	Enabled bool
	Accent  string
	Prompt  string
	Reset   string
}

func resolveTheme(out io.Writer) theme {
	t := theme{}
	file, ok := out.(*os.File)
	if !ok {
		return t
	}
	if os.Getenv("NO_COLOR") != "" {
		return t
	}
	info, err := file.Stat()
	if err != nil {
		return t
	}
	if (info.Mode() & os.ModeCharDevice) == 0 {
		return t
	}
	t.Enabled = true
	t.Accent = "\033[38;5;39m"
	t.Prompt = "\033[38;5;214m"
	t.Reset = "\033[0m"
	return t
}

func (t theme) accent() string { return t.Accent }
func (t theme) prompt() string { return t.Prompt }
func (t theme) reset() string  { return t.Reset }

// ListKMLFiles enumerates *.kml files in dir, excluding the reserved merged
// output name, each with a streamed placemark count.  Count errors read as
// zero so one broken file never hides the listing.
func ListKMLFiles(dir, exclude string) ([]FileEntry, error) {
	names, err := filepath.Glob(filepath.Join(dir, "*.kml"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var entries []FileEntry
	for _, path := range names {
		name := filepath.Base(path)
		if name == exclude {
			continue
		}
		entries = append(entries, FileEntry{Name: name, Placemarks: countPlacemarks(path)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func countPlacemarks(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n, _ := kmlstream.CountPlacemarks(f)
	return n
}

// ShowHeader prints the banner.
func (m *Menu) ShowHeader(version string) {
	fmt.Fprintf(m.out, "%s UFEDKMLstacker %s %s\n", m.theme.accent(), version, m.theme.reset())
	fmt.Fprintf(m.out, "==================================\n\n")
}

// ShowFiles prints the numbered file listing.
func (m *Menu) ShowFiles(entries []FileEntry) {
	fmt.Fprintf(m.out, "Available KML files:\n")
	for i, e := range entries {
		fmt.Fprintf(m.out, "%d. %-30s\tPlacemarks: %d\n", i+1, e.Name, e.Placemarks)
	}
	fmt.Fprintf(m.out, "e. Exit\n\n")
}

// reSelection accepts only digits, commas and whitespace.
var reSelection = regexp.MustCompile(`^[\d,\s]+$`)

// ParseSelection turns operator input like "1, 2, 5" into zero-based
// indexes.  n is the number of listed files.  Empty input selects all files.
// Every violation is an input validation error: reported, never fatal.
func ParseSelection(input string, n int) ([]int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		if n < 2 {
			return nil, fmt.Errorf("at least two KML files are required to merge")
		}
		if n > palette.MaxSources {
			return nil, fmt.Errorf("cannot merge more than %d files at once", palette.MaxSources)
		}
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if !reSelection.MatchString(input) {
		return nil, fmt.Errorf("invalid selection format, enter numbers separated by commas")
	}
	var idx []int
	seen := make(map[int]bool)
	for _, tok := range strings.Split(input, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		i, err := strconv.Atoi(tok)
		if err != nil || i < 1 || i > n {
			return nil, fmt.Errorf("selection %q is out of range 1..%d", tok, n)
		}
		if seen[i-1] {
			continue
		}
		seen[i-1] = true
		idx = append(idx, i-1)
	}
	if len(idx) < 2 {
		return nil, fmt.Errorf("at least two KML files are required to merge")
	}
	if len(idx) > palette.MaxSources {
		return nil, fmt.Errorf("cannot merge more than %d files at once", palette.MaxSources)
	}
	return idx, nil
}

// Select prompts until a valid selection arrives.  'e' returns ErrExit.
func (m *Menu) Select(ctx context.Context, entries []FileEntry) ([]string, error) {
	for {
		fmt.Fprintf(m.out, "%sEnter file numbers to merge (e.g., 1, 2, 5), empty for all, or 'e' to exit:%s ",
			m.theme.prompt(), m.theme.reset())
		line, err := m.readLine(ctx)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(strings.TrimSpace(line), "e") {
			return nil, ErrExit
		}
		idx, err := ParseSelection(line, len(entries))
		if err != nil {
			fmt.Fprintf(m.out, "%v\n", err)
			continue
		}
		files := make([]string, len(idx))
		for i, j := range idx {
			files[i] = entries[j].Name
		}
		return files, nil
	}
}

// ConfirmOverwrite asks before replacing an existing merged output.
// Enter means yes, matching the tool this one replaces.
func (m *Menu) ConfirmOverwrite(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return true, nil
	}
	fmt.Fprintf(m.out, "\nThe file %q already exists.\n", path)
	fmt.Fprintf(m.out, "%sOverwrite it? (Enter for yes / n for no):%s ", m.theme.prompt(), m.theme.reset())
	line, err := m.readLine(ctx)
	if err != nil {
		return false, err
	}
	return !strings.EqualFold(strings.TrimSpace(line), "n"), nil
}

// Remarks collects one non-empty remark per selected file.
func (m *Menu) Remarks(ctx context.Context, files []string) (map[string]string, error) {
	remarks := make(map[string]string, len(files))
	fmt.Fprintln(m.out)
	for _, f := range files {
		for {
			fmt.Fprintf(m.out, "%sEnter a remark for %s:%s ", m.theme.prompt(), f, m.theme.reset())
			line, err := m.readLine(ctx)
			if err != nil {
				return nil, err
			}
			line = strings.TrimSpace(line)
			if line == "" {
				fmt.Fprintf(m.out, "A remark is required.\n")
				continue
			}
			remarks[f] = line
			break
		}
	}
	return remarks, nil
}

// readLine reads one line in a goroutine so the prompt honours context
// cancellation; the stranded goroutine is harmless because cancellation only
// happens on process exit.
func (m *Menu) readLine(ctx context.Context) (string, error) {
	type res struct {
		s   string
		err error
	}
	ch := make(chan res, 1)
	go func() {
		s, err := m.in.ReadString('\n')
		if err == io.EOF && s != "" {
			err = nil
		}
		ch <- res{s, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		return strings.TrimRight(r.s, "\r\n"), nil
	}
}
