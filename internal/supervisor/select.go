package supervisor

import (
	"fmt"
	"strings"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/registry"
	"github.com/mkb23/overcode/internal/snapshot"
)

// daemonClaudeWindowName is the exclusive worker window name; at most one
// may exist at a time.
const daemonClaudeWindowName = "_daemon_claude"

// doNotDisturb is the standing-instructions sentinel that excludes a
// session from the attention set regardless of its status.
const doNotDisturb = "DO_NOTHING"

// attentionCandidate pairs a published snapshot row with the registry
// fields the snapshot does not carry (standing_instructions).
type attentionCandidate struct {
	snapshot.SessionDaemonState
	StandingInstructions string
}

// selectAttentionSet implements spec step 5: a session qualifies iff its
// current status is not green, it is not asleep, it has not exceeded its
// budget (budget-exceeded sessions are suppressed until an operator reset,
// per spec.md:196), its standing instructions are not the DO_NOTHING
// sentinel, and it is not the supervisor's own worker window.
func selectAttentionSet(sessions []snapshot.SessionDaemonState, registrySessions []registry.Session) []attentionCandidate {
	instructions := make(map[string]string, len(registrySessions))
	for _, s := range registrySessions {
		instructions[s.ID] = s.StandingInstructions
	}

	var out []attentionCandidate
	for _, s := range sessions {
		if s.Name == daemonClaudeWindowName {
			continue
		}
		if detect.IsGreen(s.CurrentStatus) {
			continue
		}
		if s.IsAsleep {
			continue
		}
		if s.BudgetExceeded {
			continue
		}
		si := instructions[s.ID]
		if si == doNotDisturb {
			continue
		}
		out = append(out, attentionCandidate{SessionDaemonState: s, StandingInstructions: si})
	}
	return out
}

// buildDaemonClaudeContext renders the initial prompt for a newly launched
// worker: one block per attention-set session naming its name, window,
// status, activity, standing instructions, and repo.
func buildDaemonClaudeContext(sessions []attentionCandidate) string {
	var b strings.Builder
	b.WriteString("The following sessions need attention:\n\n")
	for _, s := range sessions {
		fmt.Fprintf(&b, "- %s (window %d, repo %s): status=%s", s.Name, s.TmuxWindow, orDash(s.RepoName), snapshot.FormatStatusLabel(s.CurrentStatus))
		if s.CurrentActivity != "" {
			fmt.Fprintf(&b, ", activity=%q", s.CurrentActivity)
		}
		if s.StandingInstructions != "" {
			fmt.Fprintf(&b, ", standing instructions=%q", s.StandingInstructions)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
