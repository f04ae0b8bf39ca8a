package detect

import (
	"encoding/json"
	"os"
	"time"
)

// FreshnessWindow is the maximum age of a hook-state file before the
// detector falls back to polling.
const FreshnessWindow = 120 * time.Second

// hookState is the JSON shape written by the host hook handler on every
// event: {"event": <name>, "timestamp": <epoch seconds>, "tool_name"?: <string>}.
type hookState struct {
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
	ToolName  string `json:"tool_name,omitempty"`
}

// HookDetector reads a per-session hook-state JSON file written by a
// host-controlled hook handler, falling back to polling when the file is
// missing, malformed, or stale.
type HookDetector struct {
	polling *PollingDetector
	// hookStatePath returns the path to read for a given session name.
	hookStatePath func(tmuxSession, name string) string
	// now is overridable in tests.
	now func() time.Time
}

func NewHookDetector(polling *PollingDetector, hookStatePath func(tmuxSession, name string) string) *HookDetector {
	return &HookDetector{polling: polling, hookStatePath: hookStatePath, now: time.Now}
}

func (d *HookDetector) GetPaneContent(tmuxSession string, tmuxWindow int, numLines int) (string, bool) {
	return d.polling.GetPaneContent(tmuxSession, tmuxWindow, numLines)
}

func (d *HookDetector) DetectStatus(s Session) Result {
	path := d.hookStatePath(s.TmuxSession, s.Name)
	data, err := os.ReadFile(path)
	if err != nil {
		return d.polling.DetectStatus(s)
	}

	var state hookState
	if err := json.Unmarshal(data, &state); err != nil {
		return d.polling.DetectStatus(s)
	}

	age := d.now().Sub(time.Unix(state.Timestamp, 0))
	if age > FreshnessWindow || age < 0 {
		return d.polling.DetectStatus(s)
	}

	switch state.Event {
	case "UserPromptSubmit":
		return Result{Status: StatusRunning, Activity: "Processing prompt"}
	case "PostToolUse":
		if state.ToolName != "" {
			return Result{Status: StatusRunning, Activity: "Using " + state.ToolName}
		}
		return Result{Status: StatusRunning, Activity: "Using tool"}
	case "Stop":
		if s.IsRoot {
			return Result{Status: StatusWaitingUser, Activity: "Waiting for user input"}
		}
		return Result{Status: StatusWaitingOversight, Activity: "Waiting for oversight report"}
	case "PermissionRequest":
		return Result{Status: StatusWaitingUser, Activity: "Permission: approval required"}
	case "SessionEnd":
		text, ok := d.GetPaneContent(s.TmuxSession, s.TmuxWindow, defaultPaneLines)
		if !ok {
			return Result{Status: StatusWaitingUser, Activity: "Unable to read pane"}
		}
		lines := splitLinesTrimmed(text)
		_, chrome := splitChrome(lines)
		if shellPromptRe.MatchString(chrome) {
			return Result{Status: StatusTerminated, PaneText: text, PaneExists: true, ChildReportedDone: true}
		}
		return Result{Status: StatusWaitingUser, Activity: "Waiting for user input", PaneText: text, PaneExists: true}
	default:
		return Result{Status: StatusWaitingUser, Activity: "Waiting for user input"}
	}
}

func splitLinesTrimmed(text string) []string {
	result := []string{}
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			result = append(result, text[start:i])
			start = i + 1
		}
	}
	if start < len(text) {
		result = append(result, text[start:])
	}
	return result
}

// SelectDetector returns the hook detector when hookStatusDetection is
// true, otherwise polling. Both satisfy Detector.
func SelectDetector(hookStatusDetection bool, hook *HookDetector, polling *PollingDetector) Detector {
	if hookStatusDetection {
		return hook
	}
	return polling
}
