package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompilePrefixStrictCaptures(t *testing.T) {
	tests := []struct {
		name   string
		format string
		line   string
		prefix string
		time   string
		pid    string
		rest   string
	}{
		{
			name:   "timestamp and pid",
			format: "%t [%p]",
			line:   "2025-01-01 12:00:00 UTC [9001] LOG:  ready",
			prefix: "2025-01-01 12:00:00 UTC [9001]",
			time:   "2025-01-01 12:00:00 UTC",
			pid:    "9001",
			rest:   "LOG:  ready",
		},
		{
			name:   "millisecond timestamp",
			format: "%m [%p]",
			line:   "2025-01-01 12:00:00.123 UTC [42] ERROR:  boom",
			prefix: "2025-01-01 12:00:00.123 UTC [42]",
			time:   "2025-01-01 12:00:00.123 UTC",
			pid:    "42",
			rest:   "ERROR:  boom",
		},
		{
			name:   "pid only, timestamp synthesized empty",
			format: "[%p]",
			line:   "[77] LOG:  hello",
			prefix: "[77]",
			time:   "",
			pid:    "77",
			rest:   "LOG:  hello",
		},
		{
			name:   "timestamp only, pid synthesized empty",
			format: "%t:",
			line:   "2025-01-01 12:00:00 UTC: LOG:  hi",
			prefix: "2025-01-01 12:00:00 UTC:",
			time:   "2025-01-01 12:00:00 UTC",
			pid:    "",
			rest:   "LOG:  hi",
		},
		{
			name:   "user and database fields",
			format: "%t [%p] user=%u db=%d",
			line:   "2025-01-01 12:00:00 UTC [5] user=alice db=shop ERROR:  nope",
			prefix: "2025-01-01 12:00:00 UTC [5] user=alice db=shop",
			time:   "2025-01-01 12:00:00 UTC",
			pid:    "5",
			rest:   "ERROR:  nope",
		},
		{
			name:   "session id as pid",
			format: "%t [%c]",
			line:   "2025-01-01 12:00:00 UTC [65f3a1b2.4e9] LOG:  x",
			prefix: "2025-01-01 12:00:00 UTC [65f3a1b2.4e9]",
			time:   "2025-01-01 12:00:00 UTC",
			pid:    "65f3a1b2.4e9",
			rest:   "LOG:  x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ps, err := CompilePrefix(tt.format, false)
			require.NoError(t, err)

			pm, ok := ps.MatchStrict(tt.line)
			require.True(t, ok, "strict matcher should match %q", tt.line)
			require.Equal(t, tt.prefix, pm.Prefix)
			require.Equal(t, tt.time, pm.Time)
			require.Equal(t, tt.pid, pm.PID)
			require.Equal(t, tt.rest, pm.Rest)
		})
	}
}

// The strict matcher always yields the same capture arity, even when the
// format has neither a timestamp nor a pid field.
func TestCompilePrefixSynthesizedArity(t *testing.T) {
	ps, err := CompilePrefix("db:", false)
	require.NoError(t, err)

	pm, ok := ps.MatchStrict("db: LOG:  something")
	require.True(t, ok)
	require.Equal(t, "db:", pm.Prefix)
	require.Equal(t, "", pm.Time)
	require.Equal(t, "", pm.PID)
}

func TestCompilePrefixClusterNotice(t *testing.T) {
	ps, err := CompilePrefix("%t [%p] user=%u,db=%d", false)
	require.NoError(t, err)

	// Cluster-wide notices carry no session fields.
	line := "2025-01-01 12:00:00 UTC [33] user=,db= LOG:  checkpoint starting"
	require.True(t, ps.MatchCluster(line))
}

func TestCompilePrefixTimeOnly(t *testing.T) {
	ps, err := CompilePrefix("%t [%p] user=%u", false)
	require.NoError(t, err)

	require.True(t, ps.MatchTimeOnlyLog("2025-01-01 12:00:00 UTC LOG:  stray"))
	require.False(t, ps.MatchTimeOnlyLog("no timestamp here LOG: nope"))
}

func TestCompilePrefixSyslogFraming(t *testing.T) {
	ps, err := CompilePrefix("%t [%p]", true)
	require.NoError(t, err)
	require.True(t, ps.Syslog)

	line := "Jan  5 03:14:15 dbhost postgres[2211]: [8-1] 2025-01-05 03:14:15 UTC [2211] ERROR:  oops"
	pm, ok := ps.MatchStrict(line)
	require.True(t, ok)
	require.Equal(t, "2211", pm.PID)
	require.Equal(t, 8, pm.Seq)
	require.Equal(t, "ERROR:  oops", pm.Rest)
}

func TestStripSQLState(t *testing.T) {
	ps, err := CompilePrefix("%t [%p] %e", false)
	require.NoError(t, err)
	require.True(t, ps.HasSQLState)

	require.Equal(t, "ERROR:  x", ps.StripSQLState("42P01 ERROR:  x"))
	require.Equal(t, "ERROR:  x", ps.StripSQLState("ERROR:  x"))
}

func TestCompilePrefixBareTrailingPercent(t *testing.T) {
	_, err := CompilePrefix("%t [%p] %", false)
	require.Error(t, err)
}
