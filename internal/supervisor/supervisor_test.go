package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/registry"
	"github.com/mkb23/overcode/internal/snapshot"
)

func TestIsDoneWindowGone(t *testing.T) {
	if !isDone("", false) {
		t.Error("expected done when window no longer exists")
	}
}

func TestIsDoneActiveIndicatorNotDone(t *testing.T) {
	if isDone("Thinking...\nesc to interrupt", true) {
		t.Error("expected not done while an active indicator is present")
	}
}

func TestIsDoneTrailingPromptIsDone(t *testing.T) {
	text := "some output\nmore output\n> "
	if !isDone(text, true) {
		t.Error("expected done when a trailing prompt line is present")
	}
}

func TestIsDoneNoIndicatorNoPromptNotDone(t *testing.T) {
	if isDone("still working on it\nno indicators here", true) {
		t.Error("expected not done without an indicator or trailing prompt")
	}
}

func TestCountInterventionsFromLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "supervisor_daemon.log")
	launch := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	stamp := func(d time.Time) string { return d.Format(logTimestampLayout) }

	lines := []string{
		stamp(launch.Add(-1*time.Minute)) + ": alpha - Tool call approved (before launch, ignored)",
		stamp(launch.Add(1*time.Minute)) + ": alpha - Tool call approved",
		stamp(launch.Add(2*time.Minute)) + ": beta - No intervention needed",
		stamp(launch.Add(3*time.Minute)) + ": alpha - Message sent to window",
		stamp(launch.Add(4*time.Minute)) + ": beta - Tool call rejected",
	}
	if err := os.WriteFile(logPath, []byte(joinLines(lines)), 0o644); err != nil {
		t.Fatal(err)
	}

	tally, err := countInterventionsFromLog(logPath, []string{"alpha", "beta"}, launch)
	if err != nil {
		t.Fatal(err)
	}
	if tally["alpha"] != 2 {
		t.Errorf("expected 2 interventions for alpha, got %d", tally["alpha"])
	}
	if tally["beta"] != 1 {
		t.Errorf("expected 1 intervention for beta (no-action line excluded), got %d", tally["beta"])
	}
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func TestSelectAttentionSetExcludesGreenAsleepAndDoNotDisturb(t *testing.T) {
	sessions := []snapshot.SessionDaemonState{
		{ID: "1", Name: "green", CurrentStatus: detect.StatusRunning},
		{ID: "2", Name: "asleep", CurrentStatus: detect.StatusWaitingUser, IsAsleep: true},
		{ID: "3", Name: "quiet", CurrentStatus: detect.StatusWaitingUser},
		{ID: "4", Name: "needs-attention", CurrentStatus: detect.StatusWaitingUser},
		{ID: "5", Name: daemonClaudeWindowName, CurrentStatus: detect.StatusWaitingUser},
	}
	registrySessions := []registry.Session{
		{ID: "3", StandingInstructions: doNotDisturb},
		{ID: "4", StandingInstructions: "keep going"},
	}

	got := selectAttentionSet(sessions, registrySessions)
	if len(got) != 1 || got[0].Name != "needs-attention" {
		t.Errorf("expected only 'needs-attention' selected, got %+v", got)
	}
}

func TestSelectAttentionSetExcludesBudgetExceeded(t *testing.T) {
	sessions := []snapshot.SessionDaemonState{
		{ID: "1", Name: "over-budget", CurrentStatus: detect.StatusWaitingUser, BudgetExceeded: true},
		{ID: "2", Name: "needs-attention", CurrentStatus: detect.StatusWaitingUser},
	}
	registrySessions := []registry.Session{
		{ID: "1"},
		{ID: "2"},
	}

	got := selectAttentionSet(sessions, registrySessions)
	if len(got) != 1 || got[0].Name != "needs-attention" {
		t.Errorf("expected budget-exceeded session suppressed, got %+v", got)
	}
}

func TestBuildDaemonClaudeContextRendersEachSession(t *testing.T) {
	candidates := []attentionCandidate{
		{
			SessionDaemonState:  snapshot.SessionDaemonState{Name: "alpha", TmuxWindow: 2, RepoName: "repoA", CurrentStatus: detect.StatusWaitingUser, CurrentActivity: "stuck on tests"},
			StandingInstructions: "fix the build",
		},
	}
	out := buildDaemonClaudeContext(candidates)
	if !contains(out, "alpha") || !contains(out, "repoA") || !contains(out, "stuck on tests") || !contains(out, "fix the build") {
		t.Errorf("context missing expected fields: %s", out)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
