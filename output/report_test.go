package output

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alain-L/tailnmail/analysis"
	"github.com/Alain-L/tailnmail/config"
)

func testConfig() *config.Config {
	cfg := config.NewConfig("/tmp/tail.conf")
	cfg.Files = []*config.FileEntry{{
		Suffix:      1,
		Template:    "/var/log/pg.log",
		CurrentPath: "/var/log/pg.log",
		LatestPath:  "/var/log/pg.log",
		Matches:     3,
	}}
	return cfg
}

func TestSubjectTemplate(t *testing.T) {
	cfg := testConfig()

	subject := Subject(cfg, "db01", 2, 7)
	require.Equal(t, "Results for /var/log/pg.log on host: db01 2 : 7", subject)
}

func TestSubjectCustomTemplate(t *testing.T) {
	cfg := testConfig()
	cfg.MailSubject = "HOST saw NUMBER hits"

	require.Equal(t, "db01 saw 7 hits", Subject(cfg, "db01", 2, 7))
}

func TestRenderReport(t *testing.T) {
	cfg := testConfig()
	now := time.Date(2025, 8, 6, 12, 0, 0, 0, time.UTC)

	clusters := []*analysis.Cluster{
		{
			Canonical: "ERROR: division by zero STATEMENT: SELECT ?/?",
			Raw:       "ERROR: division by zero\nSTATEMENT: SELECT 1/0",
			Count:     2,
			Earliest:  analysis.Occurrence{File: "/var/log/pg.log", Line: 10, Time: "2025-08-06 11:00:00 UTC"},
			Latest:    analysis.Occurrence{File: "/var/log/pg.log", Line: 55, Time: "2025-08-06 11:30:00 UTC"},
		},
		{
			Canonical: "FATAL: sorry",
			Raw:       "FATAL: sorry",
			Count:     1,
			Earliest:  analysis.Occurrence{File: "/var/log/pg.log", Line: 80, Time: "2025-08-06 11:45:00 UTC"},
			Latest:    analysis.Occurrence{File: "/var/log/pg.log", Line: 80, Time: "2025-08-06 11:45:00 UTC"},
		},
	}

	report := Render(cfg, clusters, 3, now)
	require.Contains(t, report, "Unique items: 2")
	require.Contains(t, report, "Matches from /var/log/pg.log: 3")
	require.Contains(t, report, "[1] From /var/log/pg.log (count: 2)")
	require.Contains(t, report, "First: 2025-08-06 11:00:00 UTC (line 10)")
	require.Contains(t, report, "Last:  2025-08-06 11:30:00 UTC (line 55)")
	require.Contains(t, report, "STATEMENT: SELECT 1/0")
	require.Contains(t, report, "[2] From /var/log/pg.log (line 80)")
}

func TestRenderZeroClusters(t *testing.T) {
	cfg := testConfig()
	cfg.MailSig = "-- tailnmail"

	report := Render(cfg, nil, 0, time.Now())
	require.Contains(t, report, "No new matches found.")
	require.Contains(t, report, "-- tailnmail")
}

func TestRenderStatementTruncation(t *testing.T) {
	cfg := testConfig()
	cfg.StatementSize = 20

	long := strings.Repeat("x", 100)
	clusters := []*analysis.Cluster{{
		Raw: long, Count: 1,
		Earliest: analysis.Occurrence{File: "a", Line: 1},
		Latest:   analysis.Occurrence{File: "a", Line: 1},
	}}

	report := Render(cfg, clusters, 1, time.Now())
	require.Contains(t, report, strings.Repeat("x", 20)+"... (truncated, 100 characters)")
	require.NotContains(t, report, strings.Repeat("x", 21))
}

func TestRenderTempfileStats(t *testing.T) {
	cfg := testConfig()
	cfg.Type = config.TypeTempfile

	clusters := []*analysis.Cluster{{
		Raw: "SELECT big", Count: 3,
		Earliest: analysis.Occurrence{File: "a", Line: 1},
		Latest:   analysis.Occurrence{File: "a", Line: 9},
		Smallest: analysis.Occurrence{FileSize: 1000},
		Largest:  analysis.Occurrence{FileSize: 3000},
		Total:    6000,
	}}

	report := Render(cfg, clusters, 3, time.Now())
	require.Contains(t, report, "Smallest: 1000  Largest: 3000  Total: 6000  Mean: 2000")
}

func TestChunkSplitsAtClusterBoundaries(t *testing.T) {
	var b strings.Builder
	b.WriteString("Header line\n")
	for i := 1; i <= 5; i++ {
		fmt.Fprintf(&b, "[%d] From somewhere\n", i)
		b.WriteString(strings.Repeat("body ", 20))
		b.WriteString("\n")
	}
	body := b.String()

	chunks := Chunk(body, 150)
	require.Greater(t, len(chunks), 1)

	// No content is lost and every chunk after the first opens with a
	// cluster head.
	require.Equal(t, body, strings.Join(chunks, ""))
	for _, c := range chunks[1:] {
		require.Regexp(t, `^\[\d+\] `, c)
	}
}

func TestChunkSmallBodyUntouched(t *testing.T) {
	chunks := Chunk("tiny report\n", 1024)
	require.Equal(t, []string{"tiny report\n"}, chunks)
}
