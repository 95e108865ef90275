package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Alain-L/tailnmail/config"
	"github.com/Alain-L/tailnmail/parser"
)

func mkRec(file string, line int64, body string) *parser.Record {
	return &parser.Record{
		PID:      "1",
		Prefix:   fmt.Sprintf("2025-01-01 12:00:%02d UTC [1]", line),
		Time:     fmt.Sprintf("2025-01-01 12:00:%02d UTC", line),
		Segments: []string{body},
		File:     file,
		Line:     line,
	}
}

// Two INSERTs differing only in literals share a cluster; the raw string
// of the earliest occurrence is preserved verbatim.
func TestAggregatorNormalClustering(t *testing.T) {
	agg := NewAggregator(config.TypeNormal, "count")

	r1 := mkRec("a.log", 1, "INSERT INTO t VALUES (1,'x'),(2,'y')")
	r2 := mkRec("a.log", 2, "INSERT INTO t VALUES (3,'z')")
	r3 := mkRec("a.log", 3, "SELECT 1")
	agg.Add(r1, r1.Body())
	agg.Add(r2, r2.Body())
	agg.Add(r3, r3.Body())

	require.Equal(t, 3, agg.Matches())
	require.Equal(t, 2, agg.Unique())

	clusters := agg.Clusters()
	require.Equal(t, 2, clusters[0].Count, "sortby=count puts the pair first")
	require.Equal(t, "INSERT INTO t VALUES (1,'x'),(2,'y')", clusters[0].Raw)
	require.Equal(t, int64(1), clusters[0].Earliest.Line)
	require.Equal(t, int64(2), clusters[0].Latest.Line)
}

func TestAggregatorSortByDate(t *testing.T) {
	agg := NewAggregator(config.TypeNormal, "date")

	agg.Add(mkRec("a.log", 1, "ERROR: one"), "ERROR: one")
	agg.Add(mkRec("a.log", 2, "ERROR: two"), "ERROR: two")
	agg.Add(mkRec("a.log", 3, "ERROR: two"), "ERROR: two")
	agg.Add(mkRec("a.log", 4, "ERROR: two"), "ERROR: two")

	clusters := agg.Clusters()
	require.Equal(t, "ERROR: one", clusters[0].Raw, "date order keeps arrival order")
	require.Equal(t, 3, clusters[1].Count)
}

// Duration mode: no flattening, sort by extracted duration descending.
func TestAggregatorDurationMode(t *testing.T) {
	agg := NewAggregator(config.TypeDuration, "count")

	slow := mkRec("a.log", 1, "LOG: duration: 250.000 ms statement: SELECT slow")
	slow.Duration = 250
	slower := mkRec("a.log", 2, "LOG: duration: 900.000 ms statement: SELECT slower")
	slower.Duration = 900
	again := mkRec("a.log", 3, "LOG: duration: 250.000 ms statement: SELECT slow")
	again.Duration = 250

	agg.Add(slow, slow.Body())
	agg.Add(slower, slower.Body())
	agg.Add(again, again.Body())

	clusters := agg.Clusters()
	require.Len(t, clusters, 2)
	require.Equal(t, float64(900), clusters[0].Duration)
	require.Equal(t, 2, clusters[1].Count, "identical statement and duration cluster together")
	require.Contains(t, clusters[0].Raw, "DURATION: 900.000 ms")
}

// Tempfile mode: smallest/largest samples, running total, render-time
// mean.
func TestAggregatorTempfileMode(t *testing.T) {
	agg := NewAggregator(config.TypeTempfile, "count")

	sizes := []int64{1000, 3000, 2000}
	for i, size := range sizes {
		r := mkRec("a.log", int64(i+1), "SELECT big FROM wide")
		r.FileSize = size
		agg.Add(r, "SELECT big FROM wide")
	}

	clusters := agg.Clusters()
	require.Len(t, clusters, 1)
	cl := clusters[0]
	require.Equal(t, 3, cl.Count)
	require.Equal(t, int64(1000), cl.Smallest.FileSize)
	require.Equal(t, int64(3000), cl.Largest.FileSize)
	require.Equal(t, int64(6000), cl.Total)
	require.Equal(t, int64(2000), cl.Mean())
	require.Equal(t, int64(2), cl.Largest.Line)
}

func TestAggregatorTempfileSortOrder(t *testing.T) {
	agg := NewAggregator(config.TypeTempfile, "count")

	big := mkRec("a.log", 1, "SELECT a")
	big.FileSize = 9000
	small1 := mkRec("a.log", 2, "SELECT b")
	small1.FileSize = 100
	small2 := mkRec("a.log", 3, "SELECT b")
	small2.FileSize = 200

	agg.Add(small1, "SELECT b")
	agg.Add(small2, "SELECT b")
	agg.Add(big, "SELECT a")

	clusters := agg.Clusters()
	require.Equal(t, int64(9000), clusters[0].Largest.FileSize, "largest sample wins")
	require.Equal(t, 2, clusters[1].Count)
}
