// Package timestamp turns the wildly inconsistent timestamp strings found in
// forensic KML exports into timezone-aware time.Time values.
//
// Strategies are tried in a fixed order until one succeeds.  A strategy that
// fails simply hands over to the next one; nothing in this package ever
// returns an error to the caller.  "No timestamp" is a normal outcome and is
// reported as ok == false.
package timestamp

import (
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// strategy attempts one way of reading a timestamp out of a string.
type strategy func(string) (time.Time, bool)

// chain is the ordered fallback list.  The flexible parser goes first because
// it covers the vast majority of real exports; the regex-gated patterns mop up
// the stragglers the flexible parser refuses.
var chain = []strategy{
	parseFlexible,
	parseFractionalISO,
	parseWholeSecondISO,
	parseLocalizedUTC,
}

// Pattern set for the regex-gated fallbacks.  A match only *qualifies* the
// string for the canonical ISO parse below; it does not guarantee success.
// The localized DD.MM.YYYY(UTC±N) form in particular matches here but is not
// valid ISO syntax, so it still normalises to "no timestamp".
var (
	reFractionalISO = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}\.(\d{3,6})(Z|[+-]\d{2}:?\d{2})$`)
	reWholeISO      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:?\d{2})$`)
	reLocalizedUTC  = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}:\d{2}\(UTC[+-]\d{1,2}\)$`)
)

// isoLayouts is the canonical ISO parse used by every regex-gated fallback.
// Z07:00 accepts both a bare "Z" and a ±HH:MM offset; the -0700 variants pick
// up offsets written without a colon.
var isoLayouts = []string{
	"2006-01-02T15:04:05.000000Z07:00",
	"2006-01-02 15:04:05.000000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05.000000-0700",
	"2006-01-02 15:04:05.000000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05-0700",
}

// Normalize parses raw into a timezone-aware instant.  ok is false when no
// strategy recognised the input; callers treat that as "no timestamp", never
// as an error.
func Normalize(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, parse := range chain {
		if t, ok := parse(s); ok {
			return t, true
		}
	}
	log.Printf("[timestamp] unrecognized value %q", s)
	return time.Time{}, false
}

// parseFlexible defers to dateparse, which understands the common
// international date orderings plus offset and bare-Z suffixes.
func parseFlexible(s string) (time.Time, bool) {
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseFractionalISO handles fractional-second forms.  The fraction is padded
// to microsecond width before the ISO parse, matching the legacy behaviour of
// the tool this one replaces.
func parseFractionalISO(s string) (time.Time, bool) {
	m := reFractionalISO.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	frac := m[1]
	padded := frac + strings.Repeat("0", 6-len(frac))
	s = strings.Replace(s, "."+frac, "."+padded, 1)
	return parseISO(s)
}

func parseWholeSecondISO(s string) (time.Time, bool) {
	if !reWholeISO.MatchString(s) {
		return time.Time{}, false
	}
	return parseISO(s)
}

// parseLocalizedUTC qualifies the localized DD.MM.YYYY HH:MM:SS(UTC±N) form
// for the fallback parse.  The parse itself stays strictly ISO, so this
// pattern never actually yields an instant; it exists so the failure is
// logged once by Normalize instead of being silently shrugged off upstream.
func parseLocalizedUTC(s string) (time.Time, bool) {
	if !reLocalizedUTC.MatchString(s) {
		return time.Time{}, false
	}
	return parseISO(s)
}

func parseISO(s string) (time.Time, bool) {
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// reEmbedded finds timestamp-looking substrings inside free text: ISO-ish
// forms with optional fraction and offset, plus the localized (UTC±N) form.
var reEmbedded = regexp.MustCompile(
	`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d{3,6})?(?:Z|[+-]\d{2}:?\d{2})?` +
		`|\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}:\d{2}\(UTC[+-]\d{1,2}\)`)

// FromText scans free text (a placemark name or description) for a
// recognisable timestamp substring.  The scan only runs when the literal
// token "UTC" is present — an inherited content-sniffing heuristic that keeps
// us from mis-reading serial numbers as dates.  Do not widen the gate to
// other timezone markers without checking real exports first.
func FromText(text string) (time.Time, bool) {
	if !strings.Contains(text, "UTC") {
		return time.Time{}, false
	}
	for _, candidate := range reEmbedded.FindAllString(text, -1) {
		if t, ok := Normalize(candidate); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
