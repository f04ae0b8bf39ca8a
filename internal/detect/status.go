// Package detect classifies a session's runtime status from its terminal
// output, via two implementations behind one shared contract: a polling
// detector that reads pane text, and a hook detector that reads
// freshness-windowed JSON event files written by the host runtime.
package detect

// Status is the fine-grained runtime classification, distinct from a
// Session's coarse lifecycle status (running/terminated/done).
type Status string

const (
	StatusRunning           Status = "running"
	StatusWaitingUser       Status = "waiting_user"
	StatusWaitingOversight  Status = "waiting_oversight"
	StatusWaitingApproval   Status = "waiting_approval"
	StatusWaitingHeartbeat  Status = "waiting_heartbeat"
	StatusNoInstructions    Status = "no_instructions"
	StatusError             Status = "error"
	StatusTerminated        Status = "terminated"
	StatusHeartbeatStart    Status = "heartbeat_start"
	StatusAsleep            Status = "asleep"
)

// greenStatuses is the fixed set of productive statuses.
var greenStatuses = map[Status]bool{
	StatusRunning:        true,
	StatusHeartbeatStart: true,
}

// IsGreen reports whether s is in the fixed green (productive) set.
func IsGreen(s Status) bool {
	return greenStatuses[s]
}

// Result is what a detector returns for one observation.
type Result struct {
	Status     Status
	Activity   string
	PaneText   string
	PaneExists bool

	// ChildReportedDone is set only when the session's own runtime hook
	// fired a SessionEnd event and the pane shows it exited cleanly — the
	// session self-reporting completion, distinct from a caller later
	// discovering its tmux window is simply gone.
	ChildReportedDone bool
}

// Detector is the shared contract both implementations satisfy.
type Detector interface {
	// DetectStatus classifies the given session's current state.
	DetectStatus(session Session) Result
	// GetPaneContent returns the last numLines of the session's pane, or
	// ("", false) if the pane cannot be read — never an error.
	GetPaneContent(tmuxSession string, tmuxWindow int, numLines int) (string, bool)
}

// Session is the minimal view of a registry.Session a detector needs.
// Kept narrow and duplicated here (rather than importing the registry
// package) so detect has no dependency on session persistence — only the
// fields actually consulted by the classification rules.
type Session struct {
	Name                   string
	TmuxSession            string
	TmuxWindow             int
	IsRoot                 bool
	StandingInstructions   string
	HookStatusDetection    bool
}
