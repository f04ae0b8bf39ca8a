package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/actuator"
	"github.com/mkb23/overcode/internal/registry"
)

var (
	launchStartDir     string
	launchPrompt       string
	launchMode         string
	launchParent       string
	launchNoAutoParent bool
	sendNoEnter        bool
	killCascade        bool
	listJSON           bool
	listKillUntracked  bool
	outputLines        int
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	GroupID: groupSessions,
	Short:   "Launch, send to, kill, restart, and list tracked sessions",
	RunE:    requireSubcommand,
}

var sessionLaunchCmd = &cobra.Command{
	Use:   "launch <name>",
	Short: "Launch a new tracked session (idempotent by name)",
	Long: `Launch a new tmux window running the agent runtime and track it in the
registry. Launching a name that already exists returns the existing
session rather than erroring.

If --parent is not given, OVERCODE_SESSION_NAME/OVERCODE_PARENT_SESSION_ID
are consulted (per the shell environment an agent's own sessions run
inside) to auto-detect a parent, unless --no-auto-parent is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runSessionLaunch,
}

var sessionSendCmd = &cobra.Command{
	Use:   "send <name> <text>",
	Short: "Send text or a reserved control key to a tracked session",
	Long: `Send literal text, or one of the reserved control tokens (enter, escape,
tab, up, down, left, right, bspace), to a tracked session's window. This
never increments steers_count — that is the supervisor daemon's domain.`,
	Args: cobra.ExactArgs(2),
	RunE: runSessionSend,
}

var sessionKillCmd = &cobra.Command{
	Use:   "kill <name>",
	Short: "Kill a tracked session's window and remove its record",
	RunE:  runSessionKill,
}

var sessionRestartCmd = &cobra.Command{
	Use:   "restart <name>",
	Short: "Ctrl-C a tracked session and re-issue its runtime command",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionRestart,
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked sessions, cross-referenced against live tmux windows",
	RunE:  runSessionList,
}

var sessionCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Archive every terminated session record",
	RunE:  runSessionCleanup,
}

var sessionOutputCmd = &cobra.Command{
	Use:   "output <name>",
	Short: "Print a tracked session's recent pane output",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionOutput,
}

func init() {
	sessionLaunchCmd.Flags().StringVar(&launchStartDir, "dir", "", "working directory for the new window")
	sessionLaunchCmd.Flags().StringVar(&launchPrompt, "prompt", "", "initial prompt to paste and submit")
	sessionLaunchCmd.Flags().StringVar(&launchMode, "mode", "normal", "permissiveness mode: normal, permissive, or bypass")
	sessionLaunchCmd.Flags().StringVar(&launchParent, "parent", "", "parent session id (overrides auto-detection)")
	sessionLaunchCmd.Flags().BoolVar(&launchNoAutoParent, "no-auto-parent", false, "disable OVERCODE_* environment auto-parent detection")

	sessionSendCmd.Flags().BoolVar(&sendNoEnter, "no-enter", false, "do not append Enter after literal text")

	sessionKillCmd.Flags().BoolVar(&killCascade, "cascade", true, "also kill and remove all descendant sessions")

	sessionListCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	sessionListCmd.Flags().BoolVar(&listKillUntracked, "kill-untracked", false, "kill live windows that look agent-owned but aren't tracked")

	sessionOutputCmd.Flags().IntVar(&outputLines, "lines", 200, "number of trailing pane lines to print")

	sessionCmd.AddCommand(sessionLaunchCmd)
	sessionCmd.AddCommand(sessionSendCmd)
	sessionCmd.AddCommand(sessionKillCmd)
	sessionCmd.AddCommand(sessionRestartCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionCleanupCmd)
	sessionCmd.AddCommand(sessionOutputCmd)
}

func newActuator() (*actuator.Actuator, error) {
	p, err := newPaths()
	if err != nil {
		return nil, err
	}
	if err := p.EnsureSessionDir(tmuxSessionFlag); err != nil {
		return nil, err
	}
	reg := newRegistry(p)
	tmux := newTmux(p)
	return actuator.New(actuator.Config{TmuxSession: tmuxSessionFlag}, reg, tmux)
}

// autoDetectParent resolves a parent session id from the OVERCODE_*
// environment variables a launched agent's own shell carries, per
// SPEC_FULL.md §6's four consumed environment variables. Returns "" if
// none apply (different tmux_session scope, or the vars aren't set).
func autoDetectParent() string {
	if os.Getenv("OVERCODE_TMUX_SESSION") != tmuxSessionFlag {
		return ""
	}
	return os.Getenv("OVERCODE_PARENT_SESSION_ID")
}

func runSessionLaunch(cmd *cobra.Command, args []string) error {
	a, err := newActuator()
	if err != nil {
		return err
	}

	parent := launchParent
	if parent == "" && !launchNoAutoParent {
		parent = autoDetectParent()
	}

	mode := registry.PermissivenessMode(launchMode)
	s, err := a.Launch(args[0], launchStartDir, launchPrompt, mode, parent)
	if err != nil {
		return err
	}

	fmt.Printf("launched %q (window %d, id %s)\n", s.Name, s.TmuxWindow, s.ID)
	return nil
}

func runSessionSend(cmd *cobra.Command, args []string) error {
	a, err := newActuator()
	if err != nil {
		return err
	}
	return a.SendToSession(args[0], args[1], !sendNoEnter)
}

func runSessionKill(cmd *cobra.Command, args []string) error {
	a, err := newActuator()
	if err != nil {
		return err
	}
	return a.KillSession(args[0], killCascade)
}

func runSessionRestart(cmd *cobra.Command, args []string) error {
	a, err := newActuator()
	if err != nil {
		return err
	}
	return a.RestartSession(args[0])
}

func runSessionList(cmd *cobra.Command, _ []string) error {
	a, err := newActuator()
	if err != nil {
		return err
	}
	entries, err := a.ListSessions(listKillUntracked)
	if err != nil {
		return err
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		alive := "dead"
		if e.WindowAlive {
			alive = "alive"
		}
		fmt.Printf("%-20s window=%-4d status=%-12s %s\n", e.Name, e.TmuxWindow, e.Status, alive)
	}
	return nil
}

func runSessionCleanup(cmd *cobra.Command, _ []string) error {
	a, err := newActuator()
	if err != nil {
		return err
	}
	return a.CleanupTerminatedSessions()
}

func runSessionOutput(cmd *cobra.Command, args []string) error {
	a, err := newActuator()
	if err != nil {
		return err
	}
	out, err := a.GetSessionOutput(args[0], outputLines)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
