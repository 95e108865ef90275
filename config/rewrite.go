package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Rewrite persists the post-run state of the config file: updated LASTFILE
// and OFFSET values, renumbered placeholder suffixes, and every user
// comment re-emitted in front of the keyword line it was attached to.
// The file is staged in the same directory and renamed into place so a
// concurrent reader never sees a half-written config.
func (c *Config) Rewrite() error {
	c.renumber()

	var b strings.Builder
	emitted := make(map[*FileEntry]map[string]bool)
	mark := func(e *FileEntry, key string) {
		if emitted[e] == nil {
			emitted[e] = make(map[string]bool)
		}
		emitted[e][key] = true
	}

	for _, it := range c.items {
		for _, com := range it.comments {
			b.WriteString(com)
			b.WriteString("\n")
		}
		switch it.key {
		case "FILE":
			e := it.entry
			fmt.Fprintf(&b, "FILE%d: %s\n", e.Suffix, e.Template)
			mark(e, "FILE")
		case "LASTFILE":
			e := it.entry
			if e == nil || e.LastPath == "" {
				continue
			}
			fmt.Fprintf(&b, "LASTFILE%d: %s\n", e.Suffix, e.LastPath)
			mark(e, "LASTFILE")
		case "OFFSET":
			e := it.entry
			if e == nil {
				continue
			}
			fmt.Fprintf(&b, "OFFSET%d: %d\n", e.Suffix, e.Offset)
			mark(e, "OFFSET")
		case "INHERIT":
			fmt.Fprintf(&b, "INHERIT: %s\n", it.value)
		default:
			fmt.Fprintf(&b, "%s: %s\n", it.key, it.value)
		}
	}

	// Entries whose LASTFILE/OFFSET lines did not exist yet get them
	// appended, so the next run resumes where this one stopped.
	for _, e := range c.Files {
		if e.Inherited {
			continue
		}
		if e.LastPath != "" && !emitted[e]["LASTFILE"] {
			fmt.Fprintf(&b, "LASTFILE%d: %s\n", e.Suffix, e.LastPath)
		}
		if e.LastPath != "" && !emitted[e]["OFFSET"] {
			fmt.Fprintf(&b, "OFFSET%d: %d\n", e.Suffix, e.Offset)
		}
	}

	for _, com := range c.trailing {
		b.WriteString(com)
		b.WriteString("\n")
	}

	return atomicWrite(c.Path, []byte(b.String()))
}

// renumber assigns the lowest unused positive suffix to every placeholder
// (suffix 0) entry.
func (c *Config) renumber() {
	used := make(map[int]bool)
	for _, e := range c.Files {
		used[e.Suffix] = true
	}
	next := 1
	for _, e := range c.Files {
		if e.Suffix != 0 {
			continue
		}
		for used[next] {
			next++
		}
		e.Suffix = next
		used[next] = true
	}
}

// atomicWrite stages content in a temp file next to path and renames it
// into place.
func atomicWrite(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrapf(err, "staging rewrite of %s", path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(err, "writing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "closing %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "replacing %s", path)
	}
	return nil
}
