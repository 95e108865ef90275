package parser

import "strings"

// subKeywords are the continuation labels that extend an open record
// instead of opening a new one.
var subKeywords = []string{"STATEMENT:", "DETAIL:", "HINT:", "CONTEXT:", "QUERY:"}

func hasSubKeyword(rest string) bool {
	for _, kw := range subKeywords {
		if strings.HasPrefix(rest, kw) {
			return true
		}
	}
	return false
}

// Assembler reassembles logical records from physical lines, keyed by
// process id. A record stays open until a new prefix for the same pid
// arrives or the end-of-file drain; it is emitted exactly once, and the
// drain preserves each pid's first-line order.
type Assembler struct {
	ps            *PrefixSet
	sqlstate      bool
	skipNonParsed bool
	emit          func(*Record)

	open    map[string]*Record
	order   []string // pids with open records, in first-line order
	seq     map[string]int
	lastPID string
	file    string
}

// NewAssembler builds an assembler that hands every closed record to
// emit. sqlstate enables the severity-prefix strip when the format
// carries %e; skipNonParsed suppresses forced records entirely.
func NewAssembler(ps *PrefixSet, sqlstate, skipNonParsed bool, emit func(*Record)) *Assembler {
	return &Assembler{
		ps:            ps,
		sqlstate:      sqlstate,
		skipNonParsed: skipNonParsed,
		emit:          emit,
		open:          make(map[string]*Record),
		seq:           make(map[string]int),
	}
}

// StartFile resets per-file state. Open records from the previous file
// are drained first so no record spans two source files.
func (a *Assembler) StartFile(path string) {
	a.Flush()
	a.file = path
	a.lastPID = ""
}

// Line classifies one physical line and advances the per-pid state.
func (a *Assembler) Line(line string, lineno int64) {
	if pm, ok := a.ps.MatchStrict(line); ok {
		a.prefixed(pm, lineno)
		return
	}
	if a.ps.MatchCluster(line) {
		return // cluster-wide notice, dropped silently
	}
	if a.lastPID == "" {
		return
	}
	if strings.HasPrefix(line, "\t") {
		if rec := a.open[a.lastPID]; rec != nil {
			rec.Append(line[1:])
		}
		return
	}
	if a.ps.MatchTimeOnlyLog(line) {
		return
	}
	a.forced(line, lineno)
}

// prefixed handles a line that opens with a full prefix.
func (a *Assembler) prefixed(pm PrefixMatch, lineno int64) {
	rest := pm.Rest
	if a.sqlstate {
		rest = a.ps.StripSQLState(rest)
	}
	pid := pm.PID

	// Syslog framing splits one logical entry across lines sharing the
	// same [N-M] counter; a new N flushes the prior record, regardless
	// of what the new frame's text starts with. The subkeyword rule only
	// applies outside syslog framing, where the counter does not exist.
	if a.ps.Syslog {
		if rec := a.open[pid]; rec != nil {
			if pm.Seq == a.seq[pid] {
				rec.Append(rest)
				a.lastPID = pid
				return
			}
			a.close(pid)
		}
		a.seq[pid] = pm.Seq
	} else if rec := a.open[pid]; rec != nil {
		if hasSubKeyword(rest) {
			rec.Append(rest)
			a.lastPID = pid
			return
		}
		a.close(pid)
	}

	rec := &Record{
		PID:    pid,
		Prefix: pm.Prefix,
		Time:   pm.Time,
		File:   a.file,
		Line:   lineno,
	}
	rec.Append(rest)
	a.open[pid] = rec
	a.order = append(a.order, pid)
	a.lastPID = pid
}

// forced emits a synthetic single-segment record for a line that matched
// nothing, unless forced records are disabled.
func (a *Assembler) forced(line string, lineno int64) {
	if a.skipNonParsed {
		return
	}
	a.emit(&Record{
		PID:      ForcedPID,
		Segments: []string{line},
		File:     a.file,
		Line:     lineno,
	})
}

// close emits the open record for pid and forgets it.
func (a *Assembler) close(pid string) {
	rec := a.open[pid]
	if rec == nil {
		return
	}
	delete(a.open, pid)
	for i, p := range a.order {
		if p == pid {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	a.emit(rec)
}

// Flush drains all still-open records in first-line order.
func (a *Assembler) Flush() {
	for len(a.order) > 0 {
		a.close(a.order[0])
	}
}
