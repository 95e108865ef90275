package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// csvRow builds a 23-column csvlog row with the interesting fields set.
func csvRow(ts, pid, severity, message, context, query string) string {
	cols := make([]string, 23)
	cols[csvLogTime] = ts
	cols[csvProcessID] = pid
	cols[csvSeverity] = severity
	cols[csvMessage] = message
	cols[csvContext] = context
	cols[csvQuery] = query
	for i, c := range cols {
		if strings.ContainsAny(c, ",\"\n") {
			cols[i] = `"` + strings.ReplaceAll(c, `"`, `""`) + `"`
		}
	}
	return strings.Join(cols, ",")
}

func TestReadCSVBasic(t *testing.T) {
	dir := t.TempDir()
	content := csvRow("2025-01-01 12:00:00 UTC", "9001", "ERROR", "division by zero", "", "SELECT 1/0") + "\n" +
		csvRow("2025-01-01 12:00:01 UTC", "9002", "LOG", "ready", "", "") + "\n"
	path := writeFile(t, dir, "pg.csv", content)

	var recs []*Record
	res, err := ReadCSV(path, ReadOptions{}, func(r *Record) { recs = append(recs, r) })
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.Equal(t, "9001", recs[0].PID)
	require.Equal(t, "2025-01-01 12:00:00 UTC [9001]", recs[0].Prefix)
	require.Equal(t, "ERROR:  division by zero STATEMENT:  SELECT 1/0", recs[0].Segments[0])

	require.Equal(t, "LOG:  ready", recs[1].Segments[0])
	require.Equal(t, int64(len(content)), res.NewOffset)
}

func TestReadCSVContext(t *testing.T) {
	dir := t.TempDir()
	content := csvRow("2025-01-01 12:00:00 UTC", "7", "ERROR", "bad", "PL/pgSQL function f() line 3", "SELECT f()") + "\n"
	path := writeFile(t, dir, "pg.csv", content)

	var recs []*Record
	_, err := ReadCSV(path, ReadOptions{}, func(r *Record) { recs = append(recs, r) })
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t,
		"ERROR:  bad CONTEXT: PL/pgSQL function f() line 3 STATEMENT:  SELECT f()",
		recs[0].Segments[0])
}

// Resuming from the persisted offset yields only the appended rows.
func TestReadCSVIncremental(t *testing.T) {
	dir := t.TempDir()
	first := csvRow("2025-01-01 12:00:00 UTC", "1", "LOG", "one", "", "") + "\n"
	path := writeFile(t, dir, "pg.csv", first)

	var recs []*Record
	res, err := ReadCSV(path, ReadOptions{}, func(r *Record) { recs = append(recs, r) })
	require.NoError(t, err)
	require.Len(t, recs, 1)

	second := csvRow("2025-01-01 12:00:05 UTC", "2", "LOG", "two", "", "") + "\n"
	writeFile(t, dir, "pg.csv", first+second)

	recs = nil
	res2, err := ReadCSV(path, ReadOptions{Offset: res.NewOffset}, func(r *Record) { recs = append(recs, r) })
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "LOG:  two", recs[0].Segments[0])
	require.Equal(t, int64(len(first+second)), res2.NewOffset)
}
