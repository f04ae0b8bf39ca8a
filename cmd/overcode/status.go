package main

import (
	"github.com/mkb23/overcode/internal/paths"
	"github.com/mkb23/overcode/internal/snapshot"
)

// readMonitorSnapshot reads the monitor daemon's published state for the
// given tmux_session, shared by `monitor status` and `serve`.
func readMonitorSnapshot(p paths.OvercodePaths, tmuxSession string) (snapshot.DaemonSnapshot, bool, error) {
	var snap snapshot.DaemonSnapshot
	existed, err := snapshot.ReadJSON(p.MonitorStateFile(tmuxSession), &snap)
	return snap, existed, err
}
