package parser

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/pkg/errors"

	"github.com/Alain-L/tailnmail/config"
)

// latestToken is the literal directory wildcard: a template like
// "/var/log/pg/postgresql-LATEST.log" means "the newest file in
// /var/log/pg matching postgresql-*.log", stepping forward through any
// files that appeared since the last scanned one.
const latestToken = "LATEST"

// Resolver limits for time-templated file names.
const (
	resolverStep     = 30 * time.Minute
	resolverLookback = 60 * 24 * time.Hour // 60 days
)

// Clock abstracts "now" so resolver tests can pin it.
type Clock func() time.Time

// Resolver produces the ordered sequence of concrete files to read for
// one FileEntry. The last-scanned file always comes first so its unread
// tail is picked up before any newer file.
type Resolver struct {
	queue []string
}

// NewResolver expands the entry's template for this run and builds the
// file queue. timewarp (seconds) shifts the clock before template
// expansion.
func NewResolver(e *config.FileEntry, timewarp int, now Clock) (*Resolver, error) {
	if now == nil {
		now = time.Now
	}
	t := now().Add(time.Duration(timewarp) * time.Second)

	r := &Resolver{}
	switch {
	case strings.Contains(e.Template, latestToken):
		e.CurrentPath = e.Template
		if err := r.resolveLatest(e); err != nil {
			return nil, err
		}
	case strings.Contains(e.Template, "%"):
		if err := r.resolveTemplated(e, t); err != nil {
			return nil, err
		}
	default:
		e.CurrentPath = e.Template
		if e.LastPath != "" && e.LastPath != e.CurrentPath {
			r.queue = append(r.queue, e.LastPath)
		}
		r.queue = append(r.queue, e.CurrentPath)
	}
	return r, nil
}

// Next drains the queue one path at a time.
func (r *Resolver) Next() (string, bool) {
	if len(r.queue) == 0 {
		return "", false
	}
	p := r.queue[0]
	r.queue = r.queue[1:]
	return p, true
}

// Remaining reports how many paths are still queued.
func (r *Resolver) Remaining() int {
	return len(r.queue)
}

// resolveLatest scans the template's directory once and queues matches in
// ascending modification-time order. With a last-scanned file only files
// strictly newer than it qualify (equal mtimes count as not newer);
// without one, only the single newest match is kept.
func (r *Resolver) resolveLatest(e *config.FileEntry) error {
	dir := filepath.Dir(e.Template)
	base := filepath.Base(e.Template)
	idx := strings.Index(base, latestToken)
	if idx < 0 {
		return errors.Errorf("template %q: LATEST must appear in the file name", e.Template)
	}
	prefix, suffix := base[:idx], base[idx+len(latestToken):]

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "scanning %s for LATEST", dir)
	}

	type candidate struct {
		path  string
		mtime time.Time
	}
	var matches []candidate
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		matches = append(matches, candidate{filepath.Join(dir, name), info.ModTime()})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].mtime.Before(matches[j].mtime) })

	if e.LastPath == "" {
		if len(matches) > 0 {
			newest := matches[len(matches)-1]
			r.queue = append(r.queue, newest.path)
			e.CurrentPath = newest.path
		}
		return nil
	}

	r.queue = append(r.queue, e.LastPath)
	var lastMtime time.Time
	if fi, err := os.Stat(e.LastPath); err == nil {
		lastMtime = fi.ModTime()
	}
	for _, m := range matches {
		if m.path == e.LastPath {
			continue
		}
		if m.mtime.After(lastMtime) {
			r.queue = append(r.queue, m.path)
		}
	}
	e.CurrentPath = r.queue[len(r.queue)-1]
	return nil
}

// resolveTemplated renders a strftime template, walking backwards from
// "now + timewarp" in 30-minute steps until the last-scanned path (or the
// 60-day bound) is reached, then queues the collected paths oldest first
// behind the last-scanned one.
func (r *Resolver) resolveTemplated(e *config.FileEntry, now time.Time) error {
	f, err := strftime.New(e.Template)
	if err != nil {
		return errors.Wrapf(err, "invalid time template %q", e.Template)
	}

	current := f.FormatString(now)
	e.CurrentPath = current

	var walked []string
	seen := map[string]bool{current: true}
	walked = append(walked, current)

	if e.LastPath != "" && e.LastPath != current {
		for step := resolverStep; step <= resolverLookback; step += resolverStep {
			p := f.FormatString(now.Add(-step))
			if p == e.LastPath {
				break
			}
			if seen[p] {
				continue
			}
			seen[p] = true
			// Intermediate rotations only count if they exist on disk.
			if _, err := os.Stat(p); err == nil {
				walked = append(walked, p)
			}
		}
		r.queue = append(r.queue, e.LastPath)
	}

	// walked holds newest first; the reader wants oldest first.
	for i := len(walked) - 1; i >= 0; i-- {
		r.queue = append(r.queue, walked[i])
	}
	return nil
}
