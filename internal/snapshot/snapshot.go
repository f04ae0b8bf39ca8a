// Package snapshot defines the wire types the monitor daemon publishes and
// the supervisor daemon persists, plus the shared atomic-JSON write helper
// both use to stay crash-safe.
package snapshot

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mkb23/overcode/internal/detect"
)

// RelayStatus is the outcome of the most recent relay push attempt.
type RelayStatus string

const (
	RelayDisabled RelayStatus = "disabled"
	RelayOK       RelayStatus = "ok"
	RelayError    RelayStatus = "error"
)

// Presence is the optional OS-level presence sample merged into the snapshot.
type Presence struct {
	State       int  `json:"state"`
	IdleSeconds int  `json:"idle_seconds"`
	Available   bool `json:"available"`
}

// SessionDaemonState is the flat, directly renderable per-session projection
// published inside a DaemonSnapshot.
type SessionDaemonState struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	TmuxSession         string        `json:"tmux_session"`
	TmuxWindow          int           `json:"tmux_window"`
	RepoName            string        `json:"repo_name"`
	Branch              string        `json:"branch"`
	CurrentStatus       detect.Status `json:"current_status"`
	CurrentActivity     string        `json:"current_activity"`
	GreenTimeSeconds    float64       `json:"green_time_seconds"`
	NonGreenTimeSeconds float64       `json:"non_green_time_seconds"`
	SleepTimeSeconds    float64       `json:"sleep_time_seconds"`
	UptimeSeconds       float64       `json:"uptime_seconds"`
	CostBudgetUSD       float64       `json:"cost_budget_usd"`
	EstimatedCostUSD    float64       `json:"estimated_cost_usd"`
	BudgetExceeded      bool          `json:"budget_exceeded"`
	IsAsleep            bool          `json:"is_asleep"`
	TimeContextEnabled  bool          `json:"time_context_enabled"`
}

// SupervisorStats is the supervisor's own persisted file; the monitor reads
// it read-only and merges its scalars into the published snapshot.
type SupervisorStats struct {
	SupervisorLaunches         int      `json:"supervisor_launches"`
	SupervisorInputTokens      int64    `json:"supervisor_input_tokens"`
	SupervisorOutputTokens     int64    `json:"supervisor_output_tokens"`
	SupervisorCacheTokens      int64    `json:"supervisor_cache_tokens"`
	SupervisorTotalTokens      int64    `json:"supervisor_total_tokens"`
	SeenSessionIDs             []string `json:"seen_session_ids"`
	SupervisorClaudeRunning    bool     `json:"supervisor_claude_running"`
	SupervisorClaudeStartedAt  string   `json:"supervisor_claude_started_at,omitempty"`
	SupervisorClaudeTotalRunS  float64  `json:"supervisor_claude_total_run_seconds"`

	// DaemonClaudeWindow and DaemonClaudeLaunchTime track the exclusive
	// worker window while SupervisorClaudeRunning is true, so a restarted
	// supervisor process can rediscover it.
	DaemonClaudeWindow     int       `json:"daemon_claude_window,omitempty"`
	DaemonClaudeLaunchTime time.Time `json:"daemon_claude_launch_time,omitempty"`
}

// HasSeen reports whether a runtime session id has already been tallied.
func (s *SupervisorStats) HasSeen(id string) bool {
	for _, v := range s.SeenSessionIDs {
		if v == id {
			return true
		}
	}
	return false
}

// MarkSeen records id as tallied, if not already present.
func (s *SupervisorStats) MarkSeen(id string) {
	if !s.HasSeen(id) {
		s.SeenSessionIDs = append(s.SeenSessionIDs, id)
	}
}

// DaemonSnapshot is the full object published once per monitor tick to
// monitor_daemon_state.json.
type DaemonSnapshot struct {
	PID             int                  `json:"pid"`
	Status          string               `json:"status"`
	LoopCount       int64                `json:"loop_count"`
	LastLoopTime    time.Time            `json:"last_loop_time"`
	CurrentInterval float64              `json:"current_interval"`
	Presence        *Presence            `json:"presence,omitempty"`
	RelayEnabled    bool                 `json:"relay_enabled"`
	RelayLastPush   time.Time            `json:"relay_last_push,omitempty"`
	RelayStatus     RelayStatus          `json:"relay_status"`
	Supervisor      SupervisorStats      `json:"supervisor"`
	Sessions        []SessionDaemonState `json:"sessions"`
}

// WriteJSON atomically persists v to path as 2-space-indented JSON with a
// trailing newline: write to a sibling .tmp file, fsync, rename over path.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadJSON loads v from path, retrying once after a short delay if the file
// is momentarily missing (a writer mid-rename).
func ReadJSON(path string, v any) (existed bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return false, err
		}
		time.Sleep(20 * time.Millisecond)
		data, err = os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, err
	}
	return true, nil
}

var titleCaser = cases.Title(language.English)

// FormatStatusLabel renders a status enum value as a human-readable,
// title-cased label for display surfaces (e.g. "waiting_user" → "Waiting
// User").
func FormatStatusLabel(s detect.Status) string {
	spaced := strings.ReplaceAll(string(s), "_", " ")
	return titleCaser.String(spaced)
}
