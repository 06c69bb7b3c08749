package stress

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// regionTable holds the memory regions a worker has mapped in the current
// cycle, one slot per iteration. A nil slot is unmapped. The table is owned
// exclusively by one worker for its lifetime.
type regionTable struct {
	regions    [][]byte
	pages      int
	pageSize   int
	regionSize int
}

func newRegionTable(slots, pagesPerRegion int) *regionTable {
	pageSize := os.Getpagesize()
	return &regionTable{
		regions:    make([][]byte, slots),
		pages:      pagesPerRegion,
		pageSize:   pageSize,
		regionSize: pagesPerRegion * pageSize,
	}
}

// mapSlot maps a private anonymous region into the given slot. The slot must
// be empty.
func (t *regionTable) mapSlot(slot int) error {
	if t.regions[slot] != nil {
		return fmt.Errorf("slot %d already mapped", slot)
	}

	mem, err := unix.Mmap(-1, 0, t.regionSize,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return fmt.Errorf("mmap %d bytes: %w", t.regionSize, err)
	}

	t.regions[slot] = mem
	return nil
}

// touchSlot writes one byte into every page of the slot's region so the
// kernel faults the pages in and the TLB picks up their translations. A
// no-op on empty slots.
func (t *regionTable) touchSlot(slot int) {
	mem := t.regions[slot]
	if mem == nil {
		return
	}
	for page := 0; page < t.pages; page++ {
		mem[page*t.pageSize] = byte(slot + page)
	}
}

// accessSlot does a strided read-then-write pass over a subset of the slot's
// pages. The offset mix keeps the walk non-sequential so it cannot ride the
// prefetcher, maximizing translation-entry churn.
func (t *regionTable) accessSlot(slot int) {
	mem := t.regions[slot]
	if mem == nil {
		return
	}
	for page := 0; page < t.pages; page += 4 {
		off := ((page*17 + slot*13) % t.pages) * t.pageSize
		v := mem[off]
		mem[off] = v + 1
	}
}

// unmapSlot releases the slot's region. Reports whether a region was mapped
// there. The slot is marked empty even when munmap fails, matching the
// best-effort release semantics of the cycle loop.
func (t *regionTable) unmapSlot(slot int) (bool, error) {
	mem := t.regions[slot]
	if mem == nil {
		return false, nil
	}
	t.regions[slot] = nil

	if err := unix.Munmap(mem); err != nil {
		return false, fmt.Errorf("munmap %d bytes: %w", t.regionSize, err)
	}
	return true, nil
}

// releaseAll unmaps every occupied slot and reports how many regions were
// released. Runs on every worker exit path so no mapping outlives its worker.
func (t *regionTable) releaseAll() int {
	released := 0
	for slot := range t.regions {
		ok, err := t.unmapSlot(slot)
		if err != nil {
			continue
		}
		if ok {
			released++
		}
	}
	return released
}

// occupied reports how many slots currently hold a mapping.
func (t *regionTable) occupied() int {
	n := 0
	for _, mem := range t.regions {
		if mem != nil {
			n++
		}
	}
	return n
}
