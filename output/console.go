package output

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/Alain-L/tailnmail/config"
)

// PrintRunSummary displays a per-file verbose summary on stdout: which
// concrete files were read, how far, and how many records matched.
func PrintRunSummary(entries []*config.FileEntry, matches int, elapsed time.Duration) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"File", "Offset", "Bytes read", "Matches"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	width := 0
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}

	var total int64
	for _, e := range entries {
		path := e.LatestPath
		if path == "" {
			path = e.CurrentPath + " (not read)"
		}
		// Keep long paths from wrapping on narrow terminals.
		if width > 40 && len(path) > width-40 {
			path = "..." + path[len(path)-(width-43):]
		}
		table.Append([]string{
			path,
			strconv.FormatInt(e.NewOffset, 10),
			strconv.FormatInt(e.BytesRead, 10),
			strconv.Itoa(e.Matches),
		})
		total += e.BytesRead
	}
	table.Render()

	fmt.Printf("tailnmail – %d matches in %.2f s (%s)\n",
		matches, elapsed.Seconds(), formatBytes(total))
}

// formatBytes converts a byte count to a human-readable string (KB, MB, GB, etc).
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}

	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(b)/float64(div), "kMGTPE"[exp])
}
