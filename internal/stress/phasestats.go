package stress

import "time"

type phase int

const (
	phaseMap phase = iota
	phaseTouch
	phaseAccess
	phaseRelease
	phaseCount
)

func (p phase) String() string {
	switch p {
	case phaseMap:
		return "map"
	case phaseTouch:
		return "touch"
	case phaseAccess:
		return "access"
	case phaseRelease:
		return "release"
	default:
		return "unknown"
	}
}

// PhaseStat aggregates the wall durations of one cycle phase.
type PhaseStat struct {
	Name  string        `json:"name"`
	Count int           `json:"count"`
	Sum   time.Duration `json:"sum"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
}

func (s *PhaseStat) add(d time.Duration) {
	s.Count++
	s.Sum += d
	if s.Min == 0 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

func (s *PhaseStat) merge(o PhaseStat) {
	if o.Count == 0 {
		return
	}
	s.Count += o.Count
	s.Sum += o.Sum
	if s.Min == 0 || (o.Min != 0 && o.Min < s.Min) {
		s.Min = o.Min
	}
	if o.Max > s.Max {
		s.Max = o.Max
	}
}

func (s PhaseStat) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

// phaseTimes is one worker's per-phase timing recorder. Each worker owns its
// own recorder and the driver merges them after the worker exits, so the
// record path takes no locks.
type phaseTimes struct {
	stats [phaseCount]PhaseStat
}

func (t *phaseTimes) record(p phase, d time.Duration) {
	t.stats[p].add(d)
}

func (t *phaseTimes) merge(o *phaseTimes) {
	for i := range t.stats {
		t.stats[i].merge(o.stats[i])
	}
}

// snapshot returns the recorded phases in cycle order, named for reporting.
func (t *phaseTimes) snapshot() []PhaseStat {
	out := make([]PhaseStat, 0, phaseCount)
	for i := phase(0); i < phaseCount; i++ {
		s := t.stats[i]
		s.Name = i.String()
		out = append(out, s)
	}
	return out
}
