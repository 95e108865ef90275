package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PrefixSet holds the three matchers compiled from a log_line_prefix
// format string. Building them is a pure function of the format and the
// syslog flag, so the whole compiler is unit-testable without touching a
// log file.
//
//   - Strict captures the whole prefix, the timestamp and the pid, and is
//     how record-opening lines are recognized.
//   - Cluster matches prefixes of cluster-wide notices (no session
//     fields); such lines are dropped silently.
//   - TimeOnly matches just the leading text through the first specifier;
//     it classifies stray timestamp+LOG: lines next to continuations.
type PrefixSet struct {
	Strict   *regexp.Regexp
	Cluster  *regexp.Regexp
	TimeOnly *regexp.Regexp

	// Syslog reports whether the matchers carry the syslog framing with
	// its [N-M] continuation counter.
	Syslog bool

	// HasSQLState is set when the format contains %e, enabling the
	// optional severity-prefix strip in sqlstate mode.
	HasSQLState bool

	tsIdx  int // Strict submatch index of the timestamp capture
	pidIdx int // Strict submatch index of the pid capture
	seqIdx int // Strict submatch index of the syslog sequence N, 0 if none
}

// PrefixMatch is the result of a successful strict match.
type PrefixMatch struct {
	Prefix string
	Time   string
	PID    string
	Rest   string

	// Seq is the syslog [N-M] sequence number, -1 outside syslog framing.
	Seq int
}

// Field patterns, shaped to the semantic type of each specifier.
const (
	patTimestamp   = `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} [A-Z][A-Za-z0-9+\-:]*`
	patTimestampMS = `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d+ [A-Z][A-Za-z0-9+\-:]*`
	patPID         = `\d+`
	patSession     = `[0-9a-fA-F]+\.[0-9a-fA-F]+`
	patLineNum     = `\d+`
	patIdent       = `[\[\]\w\.\-]*`
	patHost        = `\S*`
	patAppName     = `.*?`
	patSQLState    = `[0-9A-Z]{5}`
	patCmdTag      = `[\w ]*?`
	patVirtualXID  = `[\d/]*`

	syslogFraming = `[A-Z][a-z]{2} [ \d]\d \d{2}:\d{2}:\d{2} \S+ [\w\.\-/]+\[(\d+)\]: \[(\d+)-\d+\] `
)

// clusterStripped lists the specifiers absent from cluster-wide notices.
var clusterStripped = map[byte]bool{
	'u': true, 'd': true, 'r': true, 'h': true, 'i': true,
	'c': true, 'l': true, 's': true, 'v': true, 'x': true,
}

// CompilePrefix translates a log_line_prefix format string into the three
// matchers. The strict matcher always yields the same capture arity
// (prefix, timestamp-or-empty, pid-or-empty): when the format has no
// timestamp or pid field an empty group is synthesized at the start of
// the prefix so downstream code never special-cases the shape.
func CompilePrefix(format string, syslog bool) (*PrefixSet, error) {
	ps := &PrefixSet{Syslog: syslog}

	strict, err := ps.buildStrict(format, syslog)
	if err != nil {
		return nil, err
	}
	cluster, err := buildCluster(format, syslog)
	if err != nil {
		return nil, err
	}
	timeOnly, err := buildTimeOnly(format)
	if err != nil {
		return nil, err
	}

	ps.Strict = strict
	ps.Cluster = cluster
	ps.TimeOnly = timeOnly
	return ps, nil
}

// buildStrict assembles the strict matcher, tracking capture-group
// indices as pieces are emitted. Substitution order is fixed by the walk
// itself: each specifier is rendered exactly once, in place, so a later
// field can never corrupt an earlier capture.
func (ps *PrefixSet) buildStrict(format string, syslog bool) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`^(`)
	groups := 1 // group 1 is the whole prefix

	if syslog {
		b.WriteString(syslogFraming)
		ps.pidIdx = groups + 1
		ps.seqIdx = groups + 2
		groups += 2
	}

	// Synthesize empty captures for fields the format does not carry.
	if !strings.ContainsAny(formatSpecifiers(format), "tm") {
		b.WriteString(`()`)
		groups++
		ps.tsIdx = groups
	}
	if ps.pidIdx == 0 && !strings.ContainsAny(formatSpecifiers(format), "pc") {
		b.WriteString(`()`)
		groups++
		ps.pidIdx = groups
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteString(regexp.QuoteMeta(string(c)))
			continue
		}
		i++
		if i >= len(format) {
			return nil, errors.New("log_line_prefix ends with a bare %")
		}
		spec := format[i]
		switch spec {
		case '%':
			b.WriteString(`%`)
		case 't':
			if ps.tsIdx == 0 {
				b.WriteString(`(` + patTimestamp + `)`)
				groups++
				ps.tsIdx = groups
			} else {
				b.WriteString(`(?:` + patTimestamp + `)`)
			}
		case 'm':
			if ps.tsIdx == 0 {
				b.WriteString(`(` + patTimestampMS + `)`)
				groups++
				ps.tsIdx = groups
			} else {
				b.WriteString(`(?:` + patTimestampMS + `)`)
			}
		case 'p':
			if ps.pidIdx == 0 {
				b.WriteString(`(` + patPID + `)`)
				groups++
				ps.pidIdx = groups
			} else {
				b.WriteString(`(?:` + patPID + `)`)
			}
		case 'c':
			if ps.pidIdx == 0 {
				b.WriteString(`(` + patSession + `)`)
				groups++
				ps.pidIdx = groups
			} else {
				b.WriteString(`(?:` + patSession + `)`)
			}
		case 'l':
			b.WriteString(patLineNum)
		case 'u', 'd':
			b.WriteString(patIdent)
		case 'h', 'r':
			b.WriteString(patHost)
		case 'a':
			b.WriteString(patAppName)
		case 'e':
			b.WriteString(patSQLState)
			ps.HasSQLState = true
		case 'i':
			b.WriteString(patCmdTag)
		case 's':
			b.WriteString(`(?:` + patTimestamp + `)`)
		case 'v':
			b.WriteString(patVirtualXID)
		case 'x':
			b.WriteString(`\d*`)
		case 'q':
			// %q marks where non-session processes stop; it matches nothing.
		default:
			b.WriteString(`\S*`)
		}
	}
	b.WriteString(`)`)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, errors.Wrapf(err, "compiling strict prefix matcher for %q", format)
	}
	return re, nil
}

// buildCluster derives the cluster-notice matcher: session-only
// specifiers are stripped and the remaining fields become non-capturing.
func buildCluster(format string, syslog bool) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`^`)
	if syslog {
		b.WriteString(`(?:` + syslogFraming + `)`)
	}
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteString(regexp.QuoteMeta(string(c)))
			continue
		}
		i++
		if i >= len(format) {
			return nil, errors.New("log_line_prefix ends with a bare %")
		}
		spec := format[i]
		switch {
		case spec == '%':
			b.WriteString(`%`)
		case clusterStripped[spec]:
			// absent for cluster-wide notices
		case spec == 't':
			b.WriteString(`(?:` + patTimestamp + `)`)
		case spec == 'm':
			b.WriteString(`(?:` + patTimestampMS + `)`)
		case spec == 'p':
			b.WriteString(`(?:` + patPID + `)`)
		case spec == 'a':
			b.WriteString(patAppName)
		case spec == 'e':
			b.WriteString(patSQLState)
		case spec == 'q':
			// matches nothing
		default:
			b.WriteString(`\S*`)
		}
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, errors.Wrapf(err, "compiling cluster prefix matcher for %q", format)
	}
	return re, nil
}

// buildTimeOnly keeps the format text up to and including the first
// specifier, expanding only %t/%m. It classifies stray "LOG:" lines that
// carry a timestamp but none of the session fields.
func buildTimeOnly(format string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`^`)
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteString(regexp.QuoteMeta(string(c)))
			continue
		}
		i++
		if i >= len(format) {
			break
		}
		switch format[i] {
		case 't':
			b.WriteString(`(?:` + patTimestamp + `)`)
		case 'm':
			b.WriteString(`(?:` + patTimestampMS + `)`)
		case '%':
			b.WriteString(`%`)
			continue
		default:
			// other specifiers are stripped
		}
		break // text up to and including the first specifier
	}
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, errors.Wrapf(err, "compiling timestamp matcher for %q", format)
	}
	return re, nil
}

// formatSpecifiers returns the specifier letters present in the format,
// in order, ignoring %% escapes.
func formatSpecifiers(format string) string {
	var specs []byte
	for i := 0; i < len(format)-1; i++ {
		if format[i] == '%' {
			if format[i+1] == '%' {
				i++
				continue
			}
			specs = append(specs, format[i+1])
			i++
		}
	}
	return string(specs)
}

// MatchStrict applies the strict matcher to a physical line. On success
// it returns the prefix, timestamp (possibly empty), pid (possibly
// empty), the remaining text with leading whitespace trimmed, and for
// syslog framing the [N-M] sequence number.
func (ps *PrefixSet) MatchStrict(line string) (PrefixMatch, bool) {
	m := ps.Strict.FindStringSubmatch(line)
	if m == nil {
		return PrefixMatch{}, false
	}
	pm := PrefixMatch{
		Prefix: m[1],
		Rest:   strings.TrimLeft(line[len(m[0]):], " "),
		Seq:    -1,
	}
	if ps.tsIdx > 0 {
		pm.Time = m[ps.tsIdx]
	}
	if ps.pidIdx > 0 {
		pm.PID = m[ps.pidIdx]
	}
	if ps.seqIdx > 0 {
		pm.Seq, _ = strconv.Atoi(m[ps.seqIdx])
	}
	return pm, true
}

// MatchCluster reports whether the line opens with a cluster-notice
// prefix.
func (ps *PrefixSet) MatchCluster(line string) bool {
	return ps.Cluster.MatchString(line)
}

// MatchTimeOnlyLog reports whether the line is a timestamp followed by a
// bare "LOG:" entry, the shape dropped silently next to continuations.
func (ps *PrefixSet) MatchTimeOnlyLog(line string) bool {
	loc := ps.TimeOnly.FindStringIndex(line)
	if loc == nil {
		return false
	}
	return strings.HasPrefix(strings.TrimLeft(line[loc[1]:], " "), "LOG:")
}

// sqlstateRE strips a leading five-character SQLSTATE token from the text
// after the prefix, e.g. "42P01 ERROR: ..." -> "ERROR: ...".
var sqlstateRE = regexp.MustCompile(`^([0-9A-Z]{5}):?\s+`)

// StripSQLState removes the sqlstate token from the head of rest when the
// format carries %e. Severity words like ERROR are also five uppercase
// characters; a real SQLSTATE always contains a digit.
func (ps *PrefixSet) StripSQLState(rest string) string {
	if !ps.HasSQLState {
		return rest
	}
	m := sqlstateRE.FindStringSubmatch(rest)
	if m == nil || !strings.ContainsAny(m[1], "0123456789") {
		return rest
	}
	return rest[len(m[0]):]
}
