package monitor

import (
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/registry"
)

// accumState is the in-memory, per-session anchor for time accumulation.
// It is never persisted directly; only the resulting counters are written
// back to the registry.
type accumState struct {
	lastStateTime time.Time
	lastStatus    detect.Status
	stateSince    time.Time
	seen          bool
}

// accumulator tracks one accumState per session id across ticks.
type accumulator struct {
	states map[string]*accumState
}

func newAccumulator() *accumulator {
	return &accumulator{states: make(map[string]*accumState)}
}

// update applies the accumulation primitive for one session observation:
// on first sight it only anchors the clock; on subsequent ticks it buckets
// the elapsed delta into green/non-green/sleep, caps the total at
// uptime*1.1 with a proportional rescale, and returns the updated stats
// plus the (possibly refreshed) state_since timestamp.
func (a *accumulator) update(id string, s *registry.Session, status detect.Status, isGreen bool, now, startTime time.Time) {
	st, ok := a.states[id]
	if !ok {
		st = &accumState{}
		a.states[id] = st
	}

	if !st.seen {
		st.lastStateTime = now
		st.lastStatus = status
		st.stateSince = now
		st.seen = true
		if s.Stats.StateSince.IsZero() {
			s.Stats.StateSince = now
		}
		s.Stats.CurrentState = string(status)
		return
	}

	delta := now.Sub(st.lastStateTime)
	st.lastStateTime = now
	if delta < 0 {
		delta = 0
	}

	switch {
	case s.IsAsleep:
		s.Stats.SleepTimeSeconds += delta.Seconds()
	case isGreen:
		s.Stats.GreenTimeSeconds += delta.Seconds()
	default:
		s.Stats.NonGreenTimeSeconds += delta.Seconds()
	}

	if status != st.lastStatus {
		st.stateSince = now
		s.Stats.StateSince = now
	}
	st.lastStatus = status
	s.Stats.CurrentState = string(status)
	s.Stats.LastTimeAccumulation = now

	rescaleToUptimeCap(s, now, startTime)
}

// rescaleToUptimeCap enforces green+non_green+sleep <= (now-start)*1.1 by
// proportionally shrinking all three buckets when the cap is breached,
// preserving their relative ratio (see DESIGN.md Open Question decision).
func rescaleToUptimeCap(s *registry.Session, now, startTime time.Time) {
	if startTime.IsZero() {
		return
	}
	uptimeCap := now.Sub(startTime).Seconds() * 1.1
	if uptimeCap < 0 {
		uptimeCap = 0
	}
	total := s.Stats.GreenTimeSeconds + s.Stats.NonGreenTimeSeconds + s.Stats.SleepTimeSeconds
	if total <= uptimeCap || total <= 0 {
		return
	}
	factor := uptimeCap / total
	s.Stats.GreenTimeSeconds *= factor
	s.Stats.NonGreenTimeSeconds *= factor
	s.Stats.SleepTimeSeconds *= factor
}
