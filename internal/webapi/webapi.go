// Package webapi is a thin net/http.Handler exposing the two read endpoints
// this module implements as a concrete instance of the HTTP hook point:
// GET /api/status and GET /health. It imports no web framework, mirroring
// the teacher's internal/web/api.go. GET /api/status reads the monitor's
// published snapshot and, when wired with a registry and liveness checker,
// augments it with a bounded-concurrency registry.Discover sweep rather
// than a per-session tmux round trip.
package webapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mkb23/overcode/internal/paths"
	"github.com/mkb23/overcode/internal/registry"
	"github.com/mkb23/overcode/internal/snapshot"
)

// staleAfter is how long since LastLoopTime a published snapshot is
// considered stale for /health purposes.
const staleAfter = 60 * time.Second

// Handler serves the status/health surface for one tmux_session scope.
type Handler struct {
	paths       paths.OvercodePaths
	tmuxSession string
	reg         *registry.Registry
	liveness    registry.LivenessChecker
}

// New builds a Handler reading snapshots for the given tmux_session. reg and
// liveness are optional: when either is nil, GET /api/status serves the
// monitor's published snapshot without the liveness sweep.
func New(p paths.OvercodePaths, tmuxSession string, reg *registry.Registry, liveness registry.LivenessChecker) *Handler {
	return &Handler{paths: p, tmuxSession: tmuxSession, reg: reg, liveness: liveness}
}

// ServeHTTP routes GET /api/status and GET /health; anything else is 404.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/status" && r.Method == http.MethodGet:
		h.handleStatus(w, r)
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		h.handleHealth(w, r)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// statusResponse is the monitor's published snapshot plus a concurrent
// registry liveness sweep (internal/registry.Discover), keyed by session id
// so a caller can tell a tracked-but-now-dead window apart from the
// snapshot's last observed status without its own tmux round trip.
type statusResponse struct {
	snapshot.DaemonSnapshot
	WindowAlive map[string]bool `json:"window_alive,omitempty"`
}

// handleStatus serves the monitor daemon's published snapshot, annotated
// with a fresh registry.Discover liveness sweep when a registry and
// liveness checker were configured.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	var snap snapshot.DaemonSnapshot
	existed, err := snapshot.ReadJSON(h.paths.MonitorStateFile(h.tmuxSession), &snap)
	if err != nil {
		http.Error(w, "Failed to read monitor state: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !existed {
		http.Error(w, "Monitor daemon has not published a snapshot yet", http.StatusServiceUnavailable)
		return
	}

	resp := statusResponse{DaemonSnapshot: snap}
	if h.reg != nil && h.liveness != nil {
		discovered := h.reg.Discover(r.Context(), h.liveness, registry.DiscoverOpts{CheckLiveness: true})
		resp.WindowAlive = make(map[string]bool, len(discovered))
		for _, d := range discovered {
			resp.WindowAlive[d.ID] = d.Alive
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// healthResponse is the body returned from GET /health.
type healthResponse struct {
	OK              bool      `json:"ok"`
	MonitorPID      int       `json:"monitor_pid,omitempty"`
	MonitorStatus   string    `json:"monitor_status,omitempty"`
	LastLoopTime    time.Time `json:"last_loop_time,omitempty"`
	SnapshotPresent bool      `json:"snapshot_present"`
}

// handleHealth reports whether the monitor daemon has a fresh published
// snapshot. A missing or stale snapshot still returns 200 (this process is
// healthy; it reports on another process), with ok=false in the body.
func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var snap snapshot.DaemonSnapshot
	existed, err := snapshot.ReadJSON(h.paths.MonitorStateFile(h.tmuxSession), &snap)
	resp := healthResponse{SnapshotPresent: existed}

	if err == nil && existed {
		resp.MonitorPID = snap.PID
		resp.MonitorStatus = snap.Status
		resp.LastLoopTime = snap.LastLoopTime
		resp.OK = time.Since(snap.LastLoopTime) < staleAfter
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
