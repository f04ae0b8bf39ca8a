package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/snapshot"
	"github.com/mkb23/overcode/internal/supervisor"
)

var runtimeCommandFlag string

var supervisorCmd = &cobra.Command{
	Use:     "supervisor",
	GroupID: groupDaemons,
	Short:   "Manage the supervisor daemon (escalates attention to a robot supervisor worker)",
	RunE:    requireSubcommand,
}

var supervisorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the supervisor daemon in the foreground",
	Long: `Run the supervisor daemon for the --tmux-session scope.

Waits for the monitor daemon to publish a fresh snapshot, then on each tick:
cleans up orphaned worker windows, checks whether the exclusive
"_daemon_claude" worker window is done, counts interventions from its
structured log, syncs its token usage, and — when idle — launches a fresh
worker whenever at least one tracked session needs attention (non-green,
not asleep, not marked do-not-disturb).`,
	RunE: runSupervisorStart,
}

var supervisorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the supervisor daemon's persisted stats",
	RunE:  runSupervisorStatus,
}

func init() {
	supervisorStartCmd.Flags().StringVar(&runtimeCommandFlag, "runtime-command", "claude", "agent runtime binary invoked in the worker window")
	supervisorCmd.AddCommand(supervisorStartCmd)
	supervisorCmd.AddCommand(supervisorStatusCmd)
}

func runSupervisorStart(cmd *cobra.Command, _ []string) error {
	p, err := newPaths()
	if err != nil {
		return err
	}
	if err := p.EnsureSessionDir(tmuxSessionFlag); err != nil {
		return err
	}

	reg := newRegistry(p)
	tmux := newTmux(p)
	logger := newLogger(p.SupervisorLogFile(tmuxSessionFlag))

	s := supervisor.New(supervisor.Config{
		TmuxSession:    tmuxSessionFlag,
		RuntimeCommand: runtimeCommandFlag,
	}, p, reg, tmux, logger)
	return s.Run(cmd.Context())
}

func runSupervisorStatus(_ *cobra.Command, _ []string) error {
	p, err := newPaths()
	if err != nil {
		return err
	}

	var stats snapshot.SupervisorStats
	existed, err := snapshot.ReadJSON(p.SupervisorStatsFile(tmuxSessionFlag), &stats)
	if err != nil {
		return err
	}
	if !existed {
		fmt.Println("supervisor daemon has not published stats yet")
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
