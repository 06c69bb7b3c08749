package stress

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Summary is the aggregate result of one stress run. String renders the
// human report; JSON carries the same fields plus the raw map/release
// counters for machine consumers.
type Summary struct {
	Threads            int         `json:"threads"`
	PagesPerThread     int         `json:"pages_per_thread"`
	IterationsPerCycle int         `json:"iterations_per_cycle"`
	ConfiguredSeconds  int         `json:"configured_seconds"`
	ActualSeconds      float64     `json:"actual_seconds"`
	TotalFlushes       int64       `json:"total_flushes"`
	FlushesPerSecond   float64     `json:"flushes_per_second"`
	FlushesPerThread   float64     `json:"flushes_per_thread"`
	MapAttempts        int64       `json:"map_attempts"`
	MapFailures        int64       `json:"map_failures"`
	CleanupReleases    int64       `json:"cleanup_releases"`
	Phases             []PhaseStat `json:"phases"`
}

func (s Summary) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== TLB Flush Stress Test Results ===\n")
	fmt.Fprintf(&b, "Actual duration: %.1f seconds\n", s.ActualSeconds)
	fmt.Fprintf(&b, "Total TLB flush cycles: %d\n", s.TotalFlushes)
	fmt.Fprintf(&b, "Average TLB flushes per second: %.2f\n", s.FlushesPerSecond)
	fmt.Fprintf(&b, "Average TLB flushes per thread: %.2f\n", s.FlushesPerThread)
	if s.MapFailures > 0 {
		fmt.Fprintf(&b, "Map failures: %d of %d attempts\n", s.MapFailures, s.MapAttempts)
	}

	for _, p := range s.Phases {
		if p.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "% 8s count=% 8d sum=% 14s min=% 12s max=% 12s avg=% 12s\n",
			p.Name, p.Count, p.Sum, p.Min, p.Max, p.Avg())
	}

	return b.String()
}

func (s Summary) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}
