package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkb23/overcode/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:     "monitor",
	GroupID: groupDaemons,
	Short:   "Manage the monitor daemon (status detection, stats accumulation, snapshot publish)",
	RunE:    requireSubcommand,
}

var monitorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the monitor daemon in the foreground",
	Long: `Run the monitor daemon for the --tmux-session scope.

The monitor daemon polls each tracked session once per tick, classifies its
current status, accumulates green/non-green/sleep time, periodically syncs
token and cost stats, fires heartbeats, and publishes a snapshot any reader
(the supervisor daemon, the HTTP surface, a TUI) can consume without its
own tmux round-trip.

Runs in the foreground; use a process supervisor (systemd, tmux, nohup) to
background it.`,
	RunE: runMonitorStart,
}

var monitorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the monitor daemon's last published snapshot",
	RunE:  runMonitorStatus,
}

func init() {
	monitorCmd.AddCommand(monitorStartCmd)
	monitorCmd.AddCommand(monitorStatusCmd)
}

func runMonitorStart(cmd *cobra.Command, _ []string) error {
	p, err := newPaths()
	if err != nil {
		return err
	}
	if err := p.EnsureSessionDir(tmuxSessionFlag); err != nil {
		return err
	}

	reg := newRegistry(p)
	tmux := newTmux(p)
	logger := newLogger(p.MonitorLogFile(tmuxSessionFlag))

	m := monitor.New(monitor.Config{TmuxSession: tmuxSessionFlag}, p, reg, tmux, logger)
	return m.Run(cmd.Context())
}

func runMonitorStatus(cmd *cobra.Command, _ []string) error {
	p, err := newPaths()
	if err != nil {
		return err
	}

	snap, existed, err := readMonitorSnapshot(p, tmuxSessionFlag)
	if err != nil {
		return err
	}
	if !existed {
		fmt.Println("monitor daemon has not published a snapshot yet")
		return nil
	}
	fmt.Printf("status=%s pid=%d loop=%d sessions=%d last_loop=%s\n",
		snap.Status, snap.PID, snap.LoopCount, len(snap.Sessions), snap.LastLoopTime.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
