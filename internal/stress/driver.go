package stress

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Driver owns a validated workload and turns it into a Summary.
type Driver struct {
	cfg Config
	log *slog.Logger

	mu     sync.Mutex
	totals totals
}

// totals is the shared accumulator. Each worker folds its counters in exactly
// once, under mu, after its loop has fully exited.
type totals struct {
	flushes     int64
	mapAttempts int64
	mapFailures int64
	cleanupFree int64
	phases      phaseTimes
}

func NewDriver(cfg Config, log *slog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Driver{cfg: cfg, log: log}, nil
}

// Run spawns the configured workers and blocks until every one of them has
// exited. Cancelling ctx stops workers at their next poll point; the partial
// results are still aggregated and returned.
func (d *Driver) Run(ctx context.Context) Summary {
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Threads; i++ {
		w := newWorker(i, d.cfg, d.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.run(ctx)
			d.merge(w)
		}()
	}
	wg.Wait()

	return d.summarize(time.Since(start))
}

func (d *Driver) merge(w *worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.totals.flushes += w.flushes
	d.totals.mapAttempts += w.mapAttempts
	d.totals.mapFailures += w.mapFailures
	d.totals.cleanupFree += w.cleanupFree
	d.totals.phases.merge(&w.phases)
}

func (d *Driver) summarize(elapsed time.Duration) Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1e-9
	}

	return Summary{
		Threads:            d.cfg.Threads,
		PagesPerThread:     d.cfg.PagesPerThread,
		IterationsPerCycle: d.cfg.IterationsPerCycle,
		ConfiguredSeconds:  d.cfg.DurationSeconds,
		ActualSeconds:      elapsed.Seconds(),
		TotalFlushes:       d.totals.flushes,
		FlushesPerSecond:   float64(d.totals.flushes) / secs,
		FlushesPerThread:   float64(d.totals.flushes) / float64(d.cfg.Threads),
		MapAttempts:        d.totals.mapAttempts,
		MapFailures:        d.totals.mapFailures,
		CleanupReleases:    d.totals.cleanupFree,
		Phases:             d.totals.phases.snapshot(),
	}
}
