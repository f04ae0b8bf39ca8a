package monitor

// PresenceSample is one observation of OS-level user presence.
type PresenceSample struct {
	State       int // 1=locked, 2=inactive, 3=active
	IdleSeconds int
}

// PresenceSampler is the optional OS presence subsystem. Platforms without
// one (or sandboxes) use NoPresence, which reports unavailable.
type PresenceSampler interface {
	Sample() (PresenceSample, bool)
}

// NoPresence always reports presence as unavailable; the monitor loop
// treats that as "presence fields null, loop continues" per spec.
type NoPresence struct{}

func (NoPresence) Sample() (PresenceSample, bool) { return PresenceSample{}, false }
