// Package registry holds the durable per-agent session records: creation,
// atomic mutation, hierarchy queries, budget transfer, and archival.
package registry

import "time"

// PermissivenessMode controls which runtime flags the actuator passes when
// launching or restarting an agent.
type PermissivenessMode string

const (
	PermissivenessNormal     PermissivenessMode = "normal"
	PermissivenessPermissive PermissivenessMode = "permissive"
	PermissivenessBypass     PermissivenessMode = "bypass"
)

// LifecycleStatus is the coarse lifecycle of a session, distinct from the
// runtime status enum produced by the detectors.
type LifecycleStatus string

const (
	LifecycleRunning    LifecycleStatus = "running"
	LifecycleTerminated LifecycleStatus = "terminated"
	LifecycleDone       LifecycleStatus = "done"
)

// SessionStats is the mutable, frequently-updated substructure of a Session.
type SessionStats struct {
	InteractionCount int `json:"interaction_count"`
	SteersCount      int `json:"steers_count"`

	InputTokens         int64   `json:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	CacheCreationTokens int64   `json:"cache_creation_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	TotalTokens         int64   `json:"total_tokens"`
	EstimatedCostUSD    float64 `json:"estimated_cost_usd"`

	OperationTimes []float64 `json:"operation_times"`

	CurrentState string    `json:"current_state"`
	StateSince   time.Time `json:"state_since"`

	// LastTimeAccumulation is the monotonic anchor used by the accumulation
	// primitive; it is never serialized as a wall-clock value consumers
	// should trust across process restarts, but it round-trips so a
	// restarted monitor resumes accumulation instead of double-counting.
	LastTimeAccumulation time.Time `json:"last_time_accumulation"`

	GreenTimeSeconds    float64 `json:"green_time_seconds"`
	NonGreenTimeSeconds float64 `json:"non_green_time_seconds"`
	SleepTimeSeconds    float64 `json:"sleep_time_seconds"`

	CurrentTask  string    `json:"current_task,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

const maxOperationTimes = 50

// PushOperationTime appends d to OperationTimes, evicting the oldest entry
// once the bound is reached (a ring buffer of recent non-green durations).
func (s *SessionStats) PushOperationTime(d float64) {
	s.OperationTimes = append(s.OperationTimes, d)
	if len(s.OperationTimes) > maxOperationTimes {
		s.OperationTimes = s.OperationTimes[len(s.OperationTimes)-maxOperationTimes:]
	}
}

// Session is the persistent record for one tracked agent.
type Session struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TmuxSession    string `json:"tmux_session"`
	TmuxWindow     int    `json:"tmux_window"`
	Command        string `json:"command"`
	StartDirectory string `json:"start_directory"`
	StartTime      time.Time `json:"start_time"`
	RepoName       string `json:"repo_name,omitempty"`
	Branch         string `json:"branch,omitempty"`

	Status LifecycleStatus `json:"status"`

	ParentSessionID string `json:"parent_session_id,omitempty"`

	PermissivenessMode PermissivenessMode `json:"permissiveness_mode"`

	StandingInstructions   string `json:"standing_instructions,omitempty"`
	StandingOrdersComplete bool   `json:"standing_orders_complete"`

	HeartbeatEnabled          bool      `json:"heartbeat_enabled"`
	HeartbeatPaused           bool      `json:"heartbeat_paused"`
	HeartbeatFrequencySeconds int       `json:"heartbeat_frequency_seconds"`
	HeartbeatInstruction      string    `json:"heartbeat_instruction,omitempty"`
	LastHeartbeatTime         time.Time `json:"last_heartbeat_time,omitempty"`

	IsAsleep bool `json:"is_asleep"`

	CostBudgetUSD     float64 `json:"cost_budget_usd"`
	AgentValue        int     `json:"agent_value"`
	HumanAnnotation   string  `json:"human_annotation,omitempty"`
	BudgetExceeded    bool    `json:"budget_exceeded"`

	TimeContextEnabled    bool `json:"time_context_enabled"`
	HookStatusDetection   bool `json:"hook_status_detection"`

	ClaudeSessionIDs []string `json:"claude_session_ids"`

	Stats SessionStats `json:"stats"`

	// EndTime is set by archive_session; zero for live records.
	EndTime time.Time `json:"end_time,omitempty"`

	// Extra preserves unknown fields encountered on load, so round-tripping
	// a record written by a newer version of this module does not drop data.
	Extra map[string]any `json:"-"`
}

// NewSession builds a Session with the documented defaults: agent_value
// 1000, permissiveness normal, running lifecycle, empty claude session ids.
func NewSession(id, name, tmuxSession string, tmuxWindow int) Session {
	now := nowFunc()
	return Session{
		ID:                 id,
		Name:               name,
		TmuxSession:        tmuxSession,
		TmuxWindow:         tmuxWindow,
		StartTime:          now,
		Status:             LifecycleRunning,
		PermissivenessMode: PermissivenessNormal,
		AgentValue:         1000,
		ClaudeSessionIDs:   []string{},
		Stats: SessionStats{
			StateSince:           now,
			LastTimeAccumulation: now,
			OperationTimes:       []float64{},
		},
	}
}

// nowFunc is overridable in tests that need deterministic time.
var nowFunc = time.Now
