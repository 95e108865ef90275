// Package output renders the aggregated cluster set into the mailed text
// report and hands it to a mail transport.
package output

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Alain-L/tailnmail/analysis"
	"github.com/Alain-L/tailnmail/config"
)

// Subject expands the subject template: FILE, HOST, NUMBER and UNIQUE are
// replaced with the scanned file, the hostname, the match count, and the
// cluster count.
func Subject(cfg *config.Config, hostname string, unique, matches int) string {
	file := "no files"
	if len(cfg.Files) == 1 {
		file = cfg.Files[0].CurrentPath
	} else if len(cfg.Files) > 1 {
		file = fmt.Sprintf("%s (and %d more)", cfg.Files[0].CurrentPath, len(cfg.Files)-1)
	}

	s := cfg.MailSubject
	s = strings.ReplaceAll(s, "FILE", file)
	s = strings.ReplaceAll(s, "HOST", hostname)
	s = strings.ReplaceAll(s, "NUMBER", strconv.Itoa(matches))
	s = strings.ReplaceAll(s, "UNIQUE", strconv.Itoa(unique))
	return s
}

// Render produces the full text report for one run.
func Render(cfg *config.Config, clusters []*analysis.Cluster, matches int, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Date: %s\n", now.Format("Mon Jan _2 15:04:05 2006 MST"))
	fmt.Fprintf(&b, "Unique items: %d\n", len(clusters))
	for _, e := range cfg.Files {
		if e.LatestPath == "" {
			continue
		}
		fmt.Fprintf(&b, "Matches from %s: %d\n", e.LatestPath, e.Matches)
		if e.Note != "" {
			fmt.Fprintf(&b, "  %s\n", e.Note)
		}
	}

	if len(clusters) == 0 {
		b.WriteString("\nNo new matches found.\n")
		if cfg.MailSig != "" {
			b.WriteString("\n" + cfg.MailSig + "\n")
		}
		return b.String()
	}

	limit := reportLimit(cfg)
	shown := clusters
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
		fmt.Fprintf(&b, "Showing first %d of %d items\n", limit, len(clusters))
	}

	for i, cl := range shown {
		b.WriteString("\n")
		writeCluster(&b, cfg, cl, i+1)
	}

	if cfg.MailSig != "" {
		b.WriteString("\n" + cfg.MailSig + "\n")
	}
	return b.String()
}

// reportLimit returns the per-type cap on reported clusters, 0 for
// unlimited.
func reportLimit(cfg *config.Config) int {
	switch cfg.Type {
	case config.TypeDuration:
		return cfg.DurationLimit
	case config.TypeTempfile:
		return cfg.TempfileLimit
	}
	return 0
}

// writeCluster renders one numbered cluster block. The "[N]" head is the
// boundary the chunker splits on.
func writeCluster(b *strings.Builder, cfg *config.Config, cl *analysis.Cluster, n int) {
	if cl.Count == 1 {
		fmt.Fprintf(b, "[%d] From %s%s\n", n, cl.Earliest.File, lineRef(cl.Earliest.Line))
	} else {
		fmt.Fprintf(b, "[%d] From %s (count: %d)\n", n, cl.Earliest.File, cl.Count)
		fmt.Fprintf(b, "First: %s%s\n", occurrenceStamp(cl.Earliest), lineRef(cl.Earliest.Line))
		fmt.Fprintf(b, "Last:  %s%s\n", occurrenceStamp(cl.Latest), lineRef(cl.Latest.Line))
	}

	switch cfg.Type {
	case config.TypeDuration:
		fmt.Fprintf(b, "Duration: %.3f ms\n", cl.Duration)
	case config.TypeTempfile:
		fmt.Fprintf(b, "Smallest: %d  Largest: %d  Total: %d  Mean: %d\n",
			cl.Smallest.FileSize, cl.Largest.FileSize, cl.Total, cl.Mean())
	}

	body := cl.Raw
	if cfg.StatementSize > 0 && len(body) > cfg.StatementSize {
		body = body[:cfg.StatementSize] + fmt.Sprintf("... (truncated, %d characters)", len(cl.Raw))
	}
	b.WriteString(body)
	b.WriteString("\n")
}

func occurrenceStamp(o analysis.Occurrence) string {
	if o.Time != "" {
		return o.Time
	}
	return o.Prefix
}

func lineRef(line int64) string {
	if line <= 0 {
		return ""
	}
	return fmt.Sprintf(" (line %d)", line)
}

// clusterHeadRE matches the "[N]" lines that open a cluster block; the
// chunker only splits there.
var clusterHeadRE = regexp.MustCompile(`^\[\d+\] `)

// Chunk splits an oversized report at cluster boundaries so each piece
// stays under max bytes. A single cluster larger than max is sent whole:
// correctness beats the size hint.
func Chunk(body string, max int64) []string {
	if max <= 0 || int64(len(body)) <= max {
		return []string{body}
	}

	var chunks []string
	var cur strings.Builder
	for _, line := range strings.SplitAfter(body, "\n") {
		if cur.Len() > 0 && int64(cur.Len()+len(line)) > max && clusterHeadRE.MatchString(line) {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
