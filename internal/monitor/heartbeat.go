package monitor

import (
	"os"
	"time"

	"github.com/mkb23/overcode/internal/registry"
	"github.com/mkb23/overcode/internal/timecontext"
)

// heartbeatDue reports whether s is due a heartbeat send at now.
func heartbeatDue(s *registry.Session, now time.Time) bool {
	if !s.HeartbeatEnabled || s.HeartbeatPaused || s.IsAsleep || s.HeartbeatInstruction == "" {
		return false
	}
	if s.BudgetExceeded {
		return false
	}
	last := s.LastHeartbeatTime
	if last.IsZero() {
		last = s.StartTime
	}
	freq := time.Duration(s.HeartbeatFrequencySeconds) * time.Second
	return now.Sub(last) >= freq
}

// sendHeartbeat delivers the heartbeat instruction (optionally prefixed
// with the time-context digest) to the session's window, stamps
// last_heartbeat_time, and writes the heartbeat-last timestamp file the
// time-context hook reads.
func (m *Monitor) sendHeartbeat(s *registry.Session, now time.Time) error {
	instruction := s.HeartbeatInstruction
	if s.TimeContextEnabled {
		digest := timecontext.Build(true, timecontext.Input{
			Now:           now,
			Presence:      m.lastPresence,
			Office:        m.cfg.OfficeHours,
			SessionStart:  s.StartTime,
			HeartbeatFreq: time.Duration(s.HeartbeatFrequencySeconds) * time.Second,
			LastHeartbeat: s.LastHeartbeatTime,
		})
		if digest != "" {
			instruction = digest + "\n\n" + instruction
		}
	}

	if err := m.tmux.SendKeys(s.TmuxSession, s.TmuxWindow, instruction, true); err != nil {
		return err
	}
	if err := m.registry.UpdateSession(s.ID, func(sess *registry.Session) {
		sess.LastHeartbeatTime = now
	}); err != nil {
		return err
	}

	stampPath := m.paths.HeartbeatLastFile(s.TmuxSession, s.Name)
	return os.WriteFile(stampPath, []byte(now.Format(time.RFC3339)), 0o600)
}
