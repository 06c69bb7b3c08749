package stress

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewDriverRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Threads = 0
	if _, err := NewDriver(cfg, nil); err == nil {
		t.Fatal("expected error for invalid config")
	}
}

func TestDriverRunShort(t *testing.T) {
	cfg := Config{Threads: 2, PagesPerThread: 1, DurationSeconds: 1, IterationsPerCycle: 2}
	d, err := NewDriver(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	start := time.Now()
	sum := d.Run(context.Background())
	elapsed := time.Since(start)

	if elapsed < time.Second || elapsed > 5*time.Second {
		t.Fatalf("run took %s, want ~1s", elapsed)
	}
	if sum.Threads != 2 || sum.PagesPerThread != 1 || sum.IterationsPerCycle != 2 {
		t.Fatalf("summary does not echo config: %+v", sum)
	}
	if sum.ConfiguredSeconds != 1 {
		t.Fatalf("ConfiguredSeconds = %d, want 1", sum.ConfiguredSeconds)
	}
	if sum.ActualSeconds < 0.9 {
		t.Fatalf("ActualSeconds = %.2f, want >= 0.9", sum.ActualSeconds)
	}
	if sum.TotalFlushes < 0 {
		t.Fatalf("TotalFlushes = %d, want >= 0", sum.TotalFlushes)
	}

	// Releases can never exceed successful maps.
	successfulMaps := sum.MapAttempts - sum.MapFailures
	if sum.TotalFlushes+sum.CleanupReleases > successfulMaps {
		t.Fatalf("released %d regions from %d successful maps",
			sum.TotalFlushes+sum.CleanupReleases, successfulMaps)
	}
}

func TestDriverCancellation(t *testing.T) {
	cfg := Config{Threads: 2, PagesPerThread: 1, DurationSeconds: 60, IterationsPerCycle: 1}
	d, err := NewDriver(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	sum := d.Run(ctx)
	elapsed := time.Since(start)

	if elapsed > 5*time.Second {
		t.Fatalf("workers took %s to stop after cancellation", elapsed)
	}

	// Partial results must still be consistent.
	successfulMaps := sum.MapAttempts - sum.MapFailures
	if sum.TotalFlushes+sum.CleanupReleases > successfulMaps {
		t.Fatalf("released %d regions from %d successful maps",
			sum.TotalFlushes+sum.CleanupReleases, successfulMaps)
	}
}

func TestDriverRunTwiceSameShape(t *testing.T) {
	cfg := Config{Threads: 1, PagesPerThread: 1, DurationSeconds: 1, IterationsPerCycle: 1}

	var sums []Summary
	for i := 0; i < 2; i++ {
		d, err := NewDriver(cfg, discardLogger())
		if err != nil {
			t.Fatalf("NewDriver: %v", err)
		}
		sums = append(sums, d.Run(context.Background()))
	}

	// Flush counts vary by environment; the echoed configuration must not.
	a, b := sums[0], sums[1]
	if a.Threads != b.Threads || a.PagesPerThread != b.PagesPerThread ||
		a.IterationsPerCycle != b.IterationsPerCycle || a.ConfiguredSeconds != b.ConfiguredSeconds {
		t.Fatalf("summary shape differs between runs: %+v vs %+v", a, b)
	}
}

func TestSummaryString(t *testing.T) {
	s := Summary{
		Threads:          2,
		ActualSeconds:    2.0,
		TotalFlushes:     10,
		FlushesPerSecond: 5,
		FlushesPerThread: 5,
	}
	out := s.String()
	for _, want := range []string{
		"=== TLB Flush Stress Test Results ===",
		"Actual duration: 2.0 seconds",
		"Total TLB flush cycles: 10",
		"Average TLB flushes per second: 5.00",
		"Average TLB flushes per thread: 5.00",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestSummaryJSON(t *testing.T) {
	s := Summary{Threads: 4, TotalFlushes: 7}
	data, err := s.JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	for _, want := range []string{`"threads": 4`, `"total_flushes": 7`} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("JSON missing %q:\n%s", want, data)
		}
	}
}
