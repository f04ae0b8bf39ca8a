package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkb23/overcode/internal/overerr"
)

// fileState is the on-disk shape of sessions.json: a flat map keyed by
// session id. Unknown top-level keys inside each record are not modeled
// here — per-record Extra preservation is handled by Session's custom
// (un)marshaling in marshal.go.
type fileState map[string]*Session

// Registry is the durable session store for one tmux_session scope. All
// mutations go through mutate(), which serializes writers with a single
// process-local mutex and performs the atomic read-modify-write-rename
// dance described in SPEC_FULL.md §4.2. Readers reload from disk on every
// call and tolerate a momentary "file missing" during a concurrent
// writer's rename by retrying once.
type Registry struct {
	path        string
	archivePath string

	mu sync.Mutex
}

// New builds a Registry backed by the given registry and archive files.
func New(registryPath, archivePath string) *Registry {
	return &Registry{path: registryPath, archivePath: archivePath}
}

// load reads the registry file. A missing or malformed file yields an
// empty registry rather than an error — per spec, Serialization failures
// must not halt availability.
func (r *Registry) load() fileState {
	var state fileState
	existed, err := readJSONWithRetry(r.path, &state)
	if err != nil || !existed || state == nil {
		return fileState{}
	}
	return state
}

func (r *Registry) loadArchive() fileState {
	var state fileState
	existed, err := readJSONWithRetry(r.archivePath, &state)
	if err != nil || !existed || state == nil {
		return fileState{}
	}
	return state
}

// mutate serializes fn against the current on-disk state: loads, applies
// fn to an in-memory copy, and if fn returns nil, atomically writes the
// result back. fn returning a non-nil error aborts without writing.
func (r *Registry) mutate(fn func(state fileState) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.load()
	if err := fn(state); err != nil {
		return err
	}
	return atomicWriteJSON(r.path, state)
}

// CreateSession inserts a new session record and returns it. The caller is
// responsible for name-uniqueness and depth validation before calling.
func (r *Registry) CreateSession(s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	err := r.mutate(func(state fileState) error {
		for _, existing := range state {
			if existing.TmuxSession == s.TmuxSession && existing.Name == s.Name {
				return fmt.Errorf("%w: name %q already in use in %q", overerr.ErrConflict, s.Name, s.TmuxSession)
			}
		}
		cp := s
		state[s.ID] = &cp
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// GetSession returns the session with the given id, or NotFound.
func (r *Registry) GetSession(id string) (Session, error) {
	state := r.load()
	s, ok := state[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: session %q", overerr.ErrNotFound, id)
	}
	return *s, nil
}

// GetSessionByName returns the session with the given name within
// tmuxSession, or NotFound.
func (r *Registry) GetSessionByName(tmuxSession, name string) (Session, error) {
	state := r.load()
	for _, s := range state {
		if s.TmuxSession == tmuxSession && s.Name == name {
			return *s, nil
		}
	}
	return Session{}, fmt.Errorf("%w: session %q in %q", overerr.ErrNotFound, name, tmuxSession)
}

// ListSessions returns all live sessions in this registry, ordered
// deterministically by id — the order the monitor daemon iterates in.
func (r *Registry) ListSessions() []Session {
	state := r.load()
	out := make([]Session, 0, len(state))
	for _, s := range state {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListArchivedSessions returns every archived session.
func (r *Registry) ListArchivedSessions() []Session {
	state := r.loadArchive()
	out := make([]Session, 0, len(state))
	for _, s := range state {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateSession applies mutate to the session's record in place.
func (r *Registry) UpdateSession(id string, mutate func(*Session)) error {
	return r.mutate(func(state fileState) error {
		s, ok := state[id]
		if !ok {
			return fmt.Errorf("%w: session %q", overerr.ErrNotFound, id)
		}
		mutate(s)
		return nil
	})
}

// UpdateStats applies mutate to the session's Stats in place.
func (r *Registry) UpdateStats(id string, mutate func(*SessionStats)) error {
	return r.UpdateSession(id, func(s *Session) { mutate(&s.Stats) })
}

// SetStandingInstructions sets standing_instructions and, per the
// invariant, always resets standing_orders_complete to false.
func (r *Registry) SetStandingInstructions(id, text string) error {
	return r.UpdateSession(id, func(s *Session) {
		s.StandingInstructions = text
		s.StandingOrdersComplete = false
	})
}

func (r *Registry) SetStandingOrdersComplete(id string, complete bool) error {
	return r.UpdateSession(id, func(s *Session) { s.StandingOrdersComplete = complete })
}

func (r *Registry) SetPermissiveness(id string, mode PermissivenessMode) error {
	switch mode {
	case PermissivenessNormal, PermissivenessPermissive, PermissivenessBypass:
	default:
		return fmt.Errorf("%w: permissiveness mode %q", overerr.ErrInvalidInput, mode)
	}
	return r.UpdateSession(id, func(s *Session) { s.PermissivenessMode = mode })
}

func (r *Registry) SetAgentValue(id string, value int) error {
	return r.UpdateSession(id, func(s *Session) { s.AgentValue = value })
}

func (r *Registry) SetHumanAnnotation(id, text string) error {
	return r.UpdateSession(id, func(s *Session) { s.HumanAnnotation = text })
}

// SetCostBudget sets cost_budget_usd; negative values are rejected, 0
// means unlimited.
func (r *Registry) SetCostBudget(id string, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("%w: budget must be >= 0", overerr.ErrInvalidInput)
	}
	return r.UpdateSession(id, func(s *Session) {
		s.CostBudgetUSD = amount
		if amount == 0 {
			s.BudgetExceeded = false
		}
	})
}

// SetSleep sets is_asleep, rejecting the state transitions the error
// taxonomy calls out as conflicts elsewhere (those checks live in the
// actuator, which knows about heartbeat/running context); here it is a
// plain field set used once the caller has already validated the
// transition.
func (r *Registry) SetSleep(id string, asleep bool) error {
	return r.UpdateSession(id, func(s *Session) { s.IsAsleep = asleep })
}

// SetHeartbeatConfig updates the heartbeat fields, rejecting a frequency
// below the documented 30s floor.
func (r *Registry) SetHeartbeatConfig(id string, enabled bool, frequencySeconds int, instruction string) error {
	if enabled && frequencySeconds < 30 {
		return fmt.Errorf("%w: heartbeat frequency must be >= 30s", overerr.ErrInvalidInput)
	}
	return r.UpdateSession(id, func(s *Session) {
		s.HeartbeatEnabled = enabled
		s.HeartbeatFrequencySeconds = frequencySeconds
		s.HeartbeatInstruction = instruction
	})
}

func (r *Registry) SetHeartbeatPaused(id string, paused bool) error {
	return r.UpdateSession(id, func(s *Session) { s.HeartbeatPaused = paused })
}

// AddClaudeSessionID appends id to claude_session_ids if not already
// present. Returns false (no-op) if it was already present.
func (r *Registry) AddClaudeSessionID(id, claudeSessionID string) (bool, error) {
	added := false
	err := r.UpdateSession(id, func(s *Session) {
		for _, existing := range s.ClaudeSessionIDs {
			if existing == claudeSessionID {
				return
			}
		}
		s.ClaudeSessionIDs = append(s.ClaudeSessionIDs, claudeSessionID)
		added = true
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

// DeleteSession removes a live record outright (used by cascade kill).
func (r *Registry) DeleteSession(id string) error {
	return r.mutate(func(state fileState) error {
		delete(state, id)
		return nil
	})
}

// ArchiveSession moves a live record into the archive file, stamping
// end_time. Archived records are read-only thereafter.
func (r *Registry) ArchiveSession(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.load()
	s, ok := state[id]
	if !ok {
		return fmt.Errorf("%w: session %q", overerr.ErrNotFound, id)
	}
	archived := *s
	archived.EndTime = time.Now()
	delete(state, id)
	if err := atomicWriteJSON(r.path, state); err != nil {
		return err
	}

	archiveState := r.loadArchive()
	archiveState[id] = &archived
	return atomicWriteJSON(r.archivePath, archiveState)
}
