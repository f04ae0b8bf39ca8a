package actuator

import (
	"github.com/mkb23/overcode/internal/registry"
)

// shellWindowNames are common default window names tmux assigns to a plain
// shell, used to distinguish a stray agent-owned window from an operator's
// own terminal window sharing the same tmux_session.
var shellWindowNames = map[string]bool{
	"bash": true, "zsh": true, "sh": true, "fish": true, "ksh": true,
}

// looksAgentOwned reports whether an untracked window's name is plausibly
// one this actuator created (valid per the name grammar, not a bare shell).
func looksAgentOwned(name string) bool {
	if shellWindowNames[name] {
		return false
	}
	return registry.ValidateName(name) == nil
}

// SessionListEntry pairs a registry record with whether its window is
// currently live.
type SessionListEntry struct {
	registry.Session
	WindowAlive bool
}

// ListSessions cross-references the registry against the live multiplexer
// windows: registry entries whose window is gone are marked terminated;
// live windows not present in the registry and whose name looks
// agent-owned are killed if killUntracked is set, otherwise left alone.
func (a *Actuator) ListSessions(killUntracked bool) ([]SessionListEntry, error) {
	windows, err := a.tmux.ListWindows(a.cfg.TmuxSession)
	if err != nil {
		return nil, err
	}
	liveByIndex := make(map[int]string, len(windows))
	for _, w := range windows {
		liveByIndex[w.Index] = w.Name
	}

	sessions := a.registry.ListSessions()
	trackedIndices := make(map[int]bool, len(sessions))
	out := make([]SessionListEntry, 0, len(sessions))
	for _, s := range sessions {
		if s.TmuxSession != a.cfg.TmuxSession {
			continue
		}
		trackedIndices[s.TmuxWindow] = true
		_, alive := liveByIndex[s.TmuxWindow]
		if !alive && s.Status == registry.LifecycleRunning {
			if err := a.registry.UpdateSession(s.ID, func(sess *registry.Session) {
				sess.Status = registry.LifecycleTerminated
			}); err != nil {
				return nil, err
			}
			s.Status = registry.LifecycleTerminated
		}
		out = append(out, SessionListEntry{Session: s, WindowAlive: alive})
	}

	for _, w := range windows {
		if trackedIndices[w.Index] || !looksAgentOwned(w.Name) {
			continue
		}
		if killUntracked {
			_ = a.tmux.KillWindow(a.cfg.TmuxSession, w.Index)
		}
	}

	return out, nil
}

// CleanupTerminatedSessions archives every session record whose lifecycle
// status is terminated.
func (a *Actuator) CleanupTerminatedSessions() error {
	for _, s := range a.registry.ListSessions() {
		if s.TmuxSession != a.cfg.TmuxSession || s.Status != registry.LifecycleTerminated {
			continue
		}
		if err := a.registry.ArchiveSession(s.ID); err != nil {
			return err
		}
	}
	return nil
}
