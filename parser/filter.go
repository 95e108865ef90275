package parser

import (
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// syslogTabMarker is the encoding syslog uses for tab characters.
const syslogTabMarker = "#011"

// FilterSet holds the four compiled regex alternations applied to closed
// records. A nil field means "no filter of this kind".
type FilterSet struct {
	Include          *regexp.Regexp
	Exclude          *regexp.Regexp
	ExcludePrefix    *regexp.Regexp
	ExcludeNonParsed *regexp.Regexp
}

var (
	filterMu    sync.Mutex
	filterCache = make(map[string]*FilterSet)
)

// CompileFilters builds (or returns the memoized) FilterSet for the
// given pattern lists. Each list becomes a single alternation; an empty
// list compiles to nil.
func CompileFilters(include, exclude, excludePrefix, excludeNonParsed []string) (*FilterSet, error) {
	key := strings.Join(include, "\x00") + "\x01" +
		strings.Join(exclude, "\x00") + "\x01" +
		strings.Join(excludePrefix, "\x00") + "\x01" +
		strings.Join(excludeNonParsed, "\x00")

	filterMu.Lock()
	defer filterMu.Unlock()
	if fs, ok := filterCache[key]; ok {
		return fs, nil
	}

	fs := &FilterSet{}
	var err error
	if fs.Include, err = compileAlternation(include); err != nil {
		return nil, errors.Wrap(err, "INCLUDE")
	}
	if fs.Exclude, err = compileAlternation(exclude); err != nil {
		return nil, errors.Wrap(err, "EXCLUDE")
	}
	if fs.ExcludePrefix, err = compileAlternation(excludePrefix); err != nil {
		return nil, errors.Wrap(err, "EXCLUDE_PREFIX")
	}
	if fs.ExcludeNonParsed, err = compileAlternation(excludeNonParsed); err != nil {
		return nil, errors.Wrap(err, "EXCLUDE_NON_PARSED")
	}
	filterCache[key] = fs
	return fs, nil
}

func compileAlternation(patterns []string) (*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	parts := make([]string, len(patterns))
	for i, p := range patterns {
		parts[i] = "(?:" + p + ")"
	}
	return regexp.Compile(strings.Join(parts, "|"))
}

var (
	collapseRE = regexp.MustCompile(`\s+`)
	durationRE = regexp.MustCompile(`duration: (\d+(?:\.\d+)?) ms`)
	tempfileRE = regexp.MustCompile(`temporary file: .*? size (\d+)`)
)

// NormalizeBody flattens a record body to the canonical single-line form
// the filters run against: segments joined, leading whitespace stripped,
// interior whitespace collapsed, embedded newlines escaped, and syslog
// tab encodings removed.
func NormalizeBody(rec *Record) string {
	body := rec.Body()
	body = strings.ReplaceAll(body, syslogTabMarker, " ")
	body = strings.ReplaceAll(body, "\n", `\n`)
	body = collapseRE.ReplaceAllString(body, " ")
	return strings.TrimSpace(body)
}

// Admit applies the filter pipeline to a closed record. It returns the
// normalized body and whether the record survives. In duration and
// tempfile modes the numeric fields are extracted onto the record as a
// side effect.
func (f *FilterSet) Admit(rec *Record, reportType string, durationMin float64, tempfileMin int64) (string, bool) {
	body := NormalizeBody(rec)

	// Forced records bypass the regular filters: only the non-parsed
	// exclusion applies to them.
	if rec.PID == ForcedPID {
		if f.ExcludeNonParsed != nil && f.ExcludeNonParsed.MatchString(body) {
			return body, false
		}
		return body, true
	}

	if f.Include != nil && !f.Include.MatchString(body) {
		return body, false
	}
	if f.Exclude != nil && f.Exclude.MatchString(body) {
		return body, false
	}
	if f.ExcludePrefix != nil && f.ExcludePrefix.MatchString(rec.Prefix) {
		return body, false
	}

	switch reportType {
	case "duration":
		m := durationRE.FindStringSubmatch(body)
		if m == nil {
			return body, false
		}
		ms, _ := strconv.ParseFloat(m[1], 64)
		if ms < durationMin {
			return body, false
		}
		rec.Duration = ms

	case "tempfile":
		m := tempfileRE.FindStringSubmatch(body)
		if m == nil {
			return body, false
		}
		size, _ := strconv.ParseInt(m[1], 10, 64)
		if size < tempfileMin {
			return body, false
		}
		rec.FileSize = size
		if idx := strings.Index(body, "STATEMENT:"); idx >= 0 {
			body = strings.TrimSpace(body[idx+len("STATEMENT:"):])
		}
	}

	return body, true
}
