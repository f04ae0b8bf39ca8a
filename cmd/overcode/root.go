package main

import (
	"errors"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/overerr"
	"github.com/mkb23/overcode/internal/paths"
	"github.com/mkb23/overcode/internal/registry"
	"github.com/mkb23/overcode/internal/tmuxadapter"
)

// Command groups, mirroring the teacher's GroupID convention for `gt help`.
const (
	groupDaemons  = "daemons"
	groupSessions = "sessions"
)

var tmuxSessionFlag string

var rootCmd = &cobra.Command{
	Use:   "overcode",
	Short: "Fleet manager for long-running interactive coding-assistant sessions",
	Long: `overcode tracks, monitors, and steers a fleet of coding-assistant sessions
running in tmux windows: a monitor daemon watches status and accumulates
stats, a supervisor daemon escalates sessions that need attention to a
dedicated worker, and the actuator launches, sends to, restarts, and kills
tracked sessions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          requireSubcommand,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupDaemons, Title: "Daemon commands:"},
		&cobra.Group{ID: groupSessions, Title: "Session commands:"},
	)
	rootCmd.PersistentFlags().StringVar(&tmuxSessionFlag, "tmux-session", "main", "tmux session scope to operate on")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(supervisorCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionCmd)
}

func requireSubcommand(cmd *cobra.Command, _ []string) error {
	return cmd.Help()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// exitCodeFor maps an error to the CLI's exit-code contract: 0 success
// (handled by the caller, not here), 1 user error, 2 operational failure,
// 130 interrupted. The daemon Run() loops treat SIGINT as a graceful
// shutdown and return nil, so 130 only ever applies to a one-shot command
// whose own context is cancelled mid-flight.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, overerr.ErrNotFound) || errors.Is(err, overerr.ErrInvalidInput) || errors.Is(err, overerr.ErrConflict) {
		return 1
	}
	return 2
}

// newPaths resolves the on-disk layout from the process environment.
func newPaths() (paths.OvercodePaths, error) {
	return paths.Load()
}

// newRegistry builds a Registry scoped to the --tmux-session flag.
func newRegistry(p paths.OvercodePaths) *registry.Registry {
	return registry.New(p.RegistryFile(tmuxSessionFlag), p.ArchivedRegistryFile(tmuxSessionFlag))
}

// newTmux builds a tmux adapter honoring OVERCODE_TMUX_SOCKET.
func newTmux(p paths.OvercodePaths) *tmuxadapter.Adapter {
	return tmuxadapter.New(p.TmuxSocket)
}

// newLogger writes to the given log file, falling back to stderr if it
// cannot be opened so a daemon never fails to start merely because
// logging setup failed.
func newLogger(logPath string) *log.Logger {
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return log.New(f, "", log.LstdFlags)
}
