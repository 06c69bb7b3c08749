package stress

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// cycleSleep is the pause between cycles, giving the kernel a chance to
// process pending invalidations before the next burst of mappings.
const cycleSleep = time.Millisecond

// worker runs map/touch/access/release cycles for one thread until its
// configured duration elapses or the run context is cancelled. All of its
// state is exclusively owned until the driver merges it after run returns.
type worker struct {
	id  int
	cfg Config
	log *slog.Logger

	flushes     int64
	mapAttempts int64
	mapFailures int64
	cleanupFree int64
	phases      phaseTimes
}

func newWorker(id int, cfg Config, log *slog.Logger) *worker {
	return &worker{id: id, cfg: cfg, log: log.With("worker", id)}
}

// run executes cycles until done. The goroutine is locked to an OS thread so
// every worker stresses a distinct kernel thread.
func (w *worker) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	table := newRegionTable(w.cfg.IterationsPerCycle, w.cfg.PagesPerThread)

	// Cleanup on every exit path: no mapping outlives the worker.
	defer func() {
		w.cleanupFree += int64(table.releaseAll())
	}()

	w.log.Info("starting TLB flush stress",
		"pages", w.cfg.PagesPerThread,
		"regionBytes", table.regionSize)

	start := time.Now()
	deadline := w.cfg.Duration()

	for ctx.Err() == nil && time.Since(start) < deadline {
		w.cycle(ctx, table)

		select {
		case <-ctx.Done():
		case <-time.After(cycleSleep):
		}
	}

	w.log.Info("completed TLB flush cycles", "flushes", w.flushes)
}

// cycle runs one map → touch → access → release pass. Cancellation is polled
// at the top of each phase, and per slot during the map phase, so shutdown
// latency stays well under one cycle. mmap/munmap failures are logged and
// skipped; the loop carries on with whatever slots it has.
func (w *worker) cycle(ctx context.Context, table *regionTable) {
	t0 := time.Now()
	for slot := 0; slot < w.cfg.IterationsPerCycle; slot++ {
		if ctx.Err() != nil {
			break
		}
		w.mapAttempts++
		if err := table.mapSlot(slot); err != nil {
			w.mapFailures++
			w.log.Warn("map failed", "slot", slot, "error", err)
		}
	}
	w.phases.record(phaseMap, time.Since(t0))

	if ctx.Err() != nil {
		return
	}

	t0 = time.Now()
	for slot := 0; slot < w.cfg.IterationsPerCycle; slot++ {
		table.touchSlot(slot)
	}
	w.phases.record(phaseTouch, time.Since(t0))

	if ctx.Err() != nil {
		return
	}

	t0 = time.Now()
	for slot := 0; slot < w.cfg.IterationsPerCycle; slot++ {
		table.accessSlot(slot)
	}
	w.phases.record(phaseAccess, time.Since(t0))

	if ctx.Err() != nil {
		return
	}

	t0 = time.Now()
	for slot := 0; slot < w.cfg.IterationsPerCycle; slot++ {
		ok, err := table.unmapSlot(slot)
		if err != nil {
			w.log.Warn("unmap failed", "slot", slot, "error", err)
			continue
		}
		if ok {
			w.flushes++
		}
	}
	w.phases.record(phaseRelease, time.Since(t0))
}
