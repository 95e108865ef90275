package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alain-L/tailnmail/config"
)

func drain(r *Resolver) []string {
	var out []string
	for {
		p, ok := r.Next()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

func TestResolverPlainTemplate(t *testing.T) {
	e := &config.FileEntry{Template: "/var/log/pg.log"}
	r, err := NewResolver(e, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"/var/log/pg.log"}, drain(r))
	require.Equal(t, "/var/log/pg.log", e.CurrentPath)
}

// The last-scanned file is always yielded first so its unread tail is
// consumed before newer files.
func TestResolverPlainLastFileFirst(t *testing.T) {
	e := &config.FileEntry{Template: "/var/log/pg.log", LastPath: "/var/log/pg.log.old"}
	r, err := NewResolver(e, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"/var/log/pg.log.old", "/var/log/pg.log"}, drain(r))
}

func TestResolverTimeTemplate(t *testing.T) {
	now := func() time.Time {
		return time.Date(2025, 3, 10, 14, 45, 0, 0, time.UTC)
	}

	e := &config.FileEntry{Template: "/var/log/pg-%Y-%m-%d.log"}
	r, err := NewResolver(e, 0, now)
	require.NoError(t, err)
	require.Equal(t, []string{"/var/log/pg-2025-03-10.log"}, drain(r))
	require.Equal(t, "/var/log/pg-2025-03-10.log", e.CurrentPath)
}

// Timewarp shifts the clock before template expansion.
func TestResolverTimewarp(t *testing.T) {
	now := func() time.Time {
		return time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	}

	e := &config.FileEntry{Template: "/var/log/pg-%Y-%m-%d.log"}
	r, err := NewResolver(e, 3600, now)
	require.NoError(t, err)
	require.Equal(t, []string{"/var/log/pg-2025-03-11.log"}, drain(r))
}

// Stepping back from now finds the intermediate daily rotations between
// the last-scanned file and today, oldest first behind the last file.
func TestResolverTimeTemplateWalksBack(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"07", "08", "09", "10"} {
		writeFile(t, dir, "pg-2025-03-"+d+".log", "x\n")
	}

	now := func() time.Time {
		return time.Date(2025, 3, 10, 14, 45, 0, 0, time.UTC)
	}
	e := &config.FileEntry{
		Template: filepath.Join(dir, "pg-%Y-%m-%d.log"),
		LastPath: filepath.Join(dir, "pg-2025-03-08.log"),
	}
	r, err := NewResolver(e, 0, now)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "pg-2025-03-08.log"),
		filepath.Join(dir, "pg-2025-03-09.log"),
		filepath.Join(dir, "pg-2025-03-10.log"),
	}, drain(r))
}

// LATEST with no last file keeps only the single newest match.
func TestResolverLatestFresh(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "pg-1.log", "old\n")
	newer := writeFile(t, dir, "pg-2.log", "new\n")
	writeFile(t, dir, "other.txt", "ignored\n")

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(old, base, base))
	require.NoError(t, os.Chtimes(newer, base.Add(time.Hour), base.Add(time.Hour)))

	e := &config.FileEntry{Template: filepath.Join(dir, "pg-LATEST.log")}
	r, err := NewResolver(e, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{newer}, drain(r))
	require.Equal(t, newer, e.CurrentPath)
}

// LATEST with a last file yields it first, then every strictly newer
// match in ascending mtime order. Equal mtimes count as not newer.
func TestResolverLatestIncremental(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "pg-a.log", "a\n")
	b := writeFile(t, dir, "pg-b.log", "b\n")
	c := writeFile(t, dir, "pg-c.log", "c\n")
	same := writeFile(t, dir, "pg-d.log", "d\n")

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(a, base, base))
	require.NoError(t, os.Chtimes(same, base, base))
	require.NoError(t, os.Chtimes(b, base.Add(time.Hour), base.Add(time.Hour)))
	require.NoError(t, os.Chtimes(c, base.Add(2*time.Hour), base.Add(2*time.Hour)))

	e := &config.FileEntry{
		Template: filepath.Join(dir, "pg-LATEST.log"),
		LastPath: a,
	}
	r, err := NewResolver(e, 0, nil)
	require.NoError(t, err)
	require.Equal(t, []string{a, b, c}, drain(r))
}

func TestResolverLatestMissingDir(t *testing.T) {
	e := &config.FileEntry{Template: filepath.Join(t.TempDir(), "gone", "pg-LATEST.log")}
	_, err := NewResolver(e, 0, nil)
	require.Error(t, err)
}
