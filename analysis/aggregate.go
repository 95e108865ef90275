package analysis

import (
	"sort"

	"github.com/Alain-L/tailnmail/config"
	"github.com/Alain-L/tailnmail/parser"
)

// Occurrence pins one record to its place in the logs.
type Occurrence struct {
	File     string
	Line     int64
	Prefix   string
	Time     string
	FileSize int64
}

// Cluster is the unit of reporting: every record whose canonical form is
// identical lands in the same cluster.
type Cluster struct {
	Canonical string
	Raw       string // pretty but non-flattened first example
	Count     int
	Earliest  Occurrence
	Latest    Occurrence

	// tempfile mode
	Smallest Occurrence
	Largest  Occurrence
	Total    int64

	// duration mode sort key (largest duration seen)
	Duration float64

	seq int // arrival order: file order, then line
}

// Mean is the average temporary-file size, computed at report time.
func (c *Cluster) Mean() int64 {
	if c.Count == 0 {
		return 0
	}
	return c.Total / int64(c.Count)
}

// Aggregator maintains the cluster map for one run. Its statistics are a
// deterministic function of record emission order.
type Aggregator struct {
	reportType string
	sortBy     string
	clusters   map[string]*Cluster
	order      []*Cluster
	matches    int
}

// NewAggregator builds an aggregator for the given report type and sort
// order.
func NewAggregator(reportType, sortBy string) *Aggregator {
	return &Aggregator{
		reportType: reportType,
		sortBy:     sortBy,
		clusters:   make(map[string]*Cluster),
	}
}

// Add folds one admitted record (with its normalized body) into the
// cluster map. Flattening is disabled in duration mode: each distinct
// statement/duration pair keeps its own identity there.
func (a *Aggregator) Add(rec *parser.Record, body string) {
	a.matches++

	key := body
	if a.reportType != config.TypeDuration {
		key = Flatten(body)
	}

	occ := Occurrence{
		File:     rec.File,
		Line:     rec.Line,
		Prefix:   rec.Prefix,
		Time:     rec.Time,
		FileSize: rec.FileSize,
	}

	cl := a.clusters[key]
	if cl == nil {
		cl = &Cluster{
			Canonical: key,
			Raw:       Pretty(body, a.reportType == config.TypeDuration),
			Count:     1,
			Earliest:  occ,
			Latest:    occ,
			Duration:  rec.Duration,
			seq:       len(a.order),
		}
		if a.reportType == config.TypeTempfile {
			cl.Smallest = occ
			cl.Largest = occ
			cl.Total = rec.FileSize
		}
		a.clusters[key] = cl
		a.order = append(a.order, cl)
		return
	}

	cl.Count++
	cl.Latest = occ
	if rec.Duration > cl.Duration {
		cl.Duration = rec.Duration
	}
	if a.reportType == config.TypeTempfile {
		if occ.FileSize < cl.Smallest.FileSize {
			cl.Smallest = occ
		}
		if occ.FileSize > cl.Largest.FileSize {
			cl.Largest = occ
		}
		cl.Total += rec.FileSize
	}
}

// Matches is the number of records admitted so far.
func (a *Aggregator) Matches() int { return a.matches }

// Unique is the number of distinct clusters.
func (a *Aggregator) Unique() int { return len(a.order) }

// Clusters returns the clusters in report order.
func (a *Aggregator) Clusters() []*Cluster {
	out := make([]*Cluster, len(a.order))
	copy(out, a.order)

	switch a.reportType {
	case config.TypeDuration:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Duration != out[j].Duration {
				return out[i].Duration > out[j].Duration
			}
			return out[i].seq < out[j].seq
		})
	case config.TypeTempfile:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Largest.FileSize != out[j].Largest.FileSize {
				return out[i].Largest.FileSize > out[j].Largest.FileSize
			}
			if out[i].Mean() != out[j].Mean() {
				return out[i].Mean() > out[j].Mean()
			}
			if out[i].Count != out[j].Count {
				return out[i].Count > out[j].Count
			}
			return out[i].seq < out[j].seq
		})
	default:
		if a.sortBy == "count" {
			sort.SliceStable(out, func(i, j int) bool {
				if out[i].Count != out[j].Count {
					return out[i].Count > out[j].Count
				}
				return out[i].seq < out[j].seq
			})
		}
		// sortby=date keeps arrival order: file order, then line.
	}
	return out
}
