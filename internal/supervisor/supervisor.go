// Package supervisor implements the supervisor daemon (C5): a periodic
// loop that reads the monitor's published snapshot, selects non-green
// sessions needing attention, and launches a single exclusive "robot
// supervisor" worker window whose interventions are counted from its own
// structured log.
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/mkb23/overcode/internal/monitor"
	"github.com/mkb23/overcode/internal/paths"
	"github.com/mkb23/overcode/internal/registry"
	"github.com/mkb23/overcode/internal/snapshot"
	"github.com/mkb23/overcode/internal/tmuxadapter"
)

// Config configures one supervisor instance, scoped to a single tmux_session.
type Config struct {
	TmuxSession         string
	Interval            time.Duration
	RuntimeCommand      string // binary invoked in the worker window, e.g. "claude"
	RuntimeProjectsRoot string
	Pricing             monitor.Pricing
}

func defaultConfig(tmuxSession string) Config {
	return Config{
		TmuxSession:    tmuxSession,
		Interval:       15 * time.Second,
		RuntimeCommand: "claude",
		Pricing:        monitor.DefaultPricing,
	}
}

// Supervisor is one running instance of the supervisor daemon.
type Supervisor struct {
	cfg      Config
	paths    paths.OvercodePaths
	registry *registry.Registry
	tmux     *tmuxadapter.Adapter
	logger   *log.Logger

	mu                     sync.Mutex
	lastInterventionTally  map[string]int
}

// New builds a Supervisor scoped to cfg.TmuxSession.
func New(cfg Config, p paths.OvercodePaths, reg *registry.Registry, tmux *tmuxadapter.Adapter, logger *log.Logger) *Supervisor {
	d := defaultConfig(cfg.TmuxSession)
	if cfg.Interval > 0 {
		d.Interval = cfg.Interval
	}
	if cfg.RuntimeCommand != "" {
		d.RuntimeCommand = cfg.RuntimeCommand
	}
	if cfg.RuntimeProjectsRoot != "" {
		d.RuntimeProjectsRoot = cfg.RuntimeProjectsRoot
	}
	if cfg.Pricing != (monitor.Pricing{}) {
		d.Pricing = cfg.Pricing
	}
	return &Supervisor{
		cfg:                   d,
		paths:                 p,
		registry:              reg,
		tmux:                  tmux,
		logger:                logger,
		lastInterventionTally: make(map[string]int),
	}
}

// Run acquires the per-tmux-session singleton lock, writes the PID file,
// and runs the main loop until ctx is cancelled or a termination signal
// arrives. It waits for a fresh monitor snapshot to exist before entering
// steady state.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.paths.EnsureSessionDir(s.cfg.TmuxSession); err != nil {
		return fmt.Errorf("supervisor: ensure session dir: %w", err)
	}

	lockPath := s.paths.SupervisorLockFile(s.cfg.TmuxSession)
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("supervisor: acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("supervisor: already running for tmux session %q", s.cfg.TmuxSession)
	}
	defer func() { _ = fileLock.Unlock() }()

	pidPath := s.paths.SupervisorPIDFile(s.cfg.TmuxSession)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("supervisor: writing pid file: %w", err)
	}
	defer func() { _ = os.Remove(pidPath) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	s.logger.Printf("supervisor: starting for tmux session %q (pid %d)", s.cfg.TmuxSession, os.Getpid())
	s.waitForFreshMonitor(ctx, sigCh)

	for {
		s.tick(ctx)

		select {
		case <-ctx.Done():
			s.logger.Printf("supervisor: shutting down")
			return nil
		case <-sigCh:
			s.logger.Printf("supervisor: shutting down")
			return nil
		case <-time.After(s.cfg.Interval):
		}
	}
}

// waitForFreshMonitor blocks (interruptibly) until monitor_daemon_state.json
// exists and was published within the last two monitor intervals, so the
// first selection tick has real status data to work from.
func (s *Supervisor) waitForFreshMonitor(ctx context.Context, sigCh <-chan os.Signal) {
	const freshWindow = 30 * time.Second
	statePath := s.paths.MonitorStateFile(s.cfg.TmuxSession)
	for {
		var snap snapshot.DaemonSnapshot
		existed, err := snapshot.ReadJSON(statePath, &snap)
		if err == nil && existed && time.Since(snap.LastLoopTime) < freshWindow {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			return
		case <-time.After(2 * time.Second):
		}
	}
}

// tick runs one iteration of the 7-step main loop described in
// SPEC_FULL.md §4.5: cleanup, done-check, intervention count, token sync,
// selection, launch, publish.
func (s *Supervisor) tick(ctx context.Context) {
	now := time.Now()

	var stats snapshot.SupervisorStats
	if _, err := snapshot.ReadJSON(s.paths.SupervisorStatsFile(s.cfg.TmuxSession), &stats); err != nil {
		s.logger.Printf("supervisor: reading stats: %v", err)
	}

	s.cleanupOrphans(&stats)

	if stats.SupervisorClaudeRunning {
		s.checkDone(&stats, now)
	}

	if err := s.countInterventions(&stats); err != nil {
		s.logger.Printf("supervisor: counting interventions: %v", err)
	}

	s.syncTokens(&stats)

	if !stats.SupervisorClaudeRunning {
		s.maybeLaunch(&stats, now)
	}

	if err := snapshot.WriteJSON(s.paths.SupervisorStatsFile(s.cfg.TmuxSession), &stats); err != nil {
		s.logger.Printf("supervisor: publishing stats: %v", err)
	}
}

// cleanupOrphans kills any _daemon_claude window other than the tracked
// one, and clears the tracked window if it is gone — the exclusivity
// invariant enforcement point.
func (s *Supervisor) cleanupOrphans(stats *snapshot.SupervisorStats) {
	windows, err := s.tmux.ListWindows(s.cfg.TmuxSession)
	if err != nil {
		s.logger.Printf("supervisor: listing windows: %v", err)
		return
	}

	trackedAlive := false
	for _, w := range windows {
		if w.Name != daemonClaudeWindowName {
			continue
		}
		if stats.SupervisorClaudeRunning && w.Index == stats.DaemonClaudeWindow {
			trackedAlive = true
			continue
		}
		if err := s.tmux.KillWindow(s.cfg.TmuxSession, w.Index); err != nil {
			s.logger.Printf("supervisor: killing orphan window %d: %v", w.Index, err)
		}
	}

	if stats.SupervisorClaudeRunning && !trackedAlive {
		s.markDaemonClaudeStopped(stats, time.Now())
	}
}

// checkDone applies the worker completion heuristic and, if done, marks
// the worker stopped and kills its window.
func (s *Supervisor) checkDone(stats *snapshot.SupervisorStats, now time.Time) {
	text, exists := s.tmux.CapturePane(s.cfg.TmuxSession, stats.DaemonClaudeWindow, doneTailLines*2)
	if isDone(text, exists) {
		s.markDaemonClaudeStopped(stats, now)
		if err := s.tmux.KillWindow(s.cfg.TmuxSession, stats.DaemonClaudeWindow); err != nil {
			s.logger.Printf("supervisor: killing finished worker window: %v", err)
		}
	}
}

// markDaemonClaudeStopped adds the elapsed run time to the cumulative
// counter and clears the running flag.
func (s *Supervisor) markDaemonClaudeStopped(stats *snapshot.SupervisorStats, now time.Time) {
	if !stats.DaemonClaudeLaunchTime.IsZero() {
		stats.SupervisorClaudeTotalRunS += now.Sub(stats.DaemonClaudeLaunchTime).Seconds()
	}
	stats.SupervisorClaudeRunning = false
	stats.DaemonClaudeWindow = 0
}

// countInterventions fast-polls the supervisor log for action-phrase lines
// mentioning each tracked session since the current worker's launch time,
// and credits only the delta since the previous tick to steers_count.
func (s *Supervisor) countInterventions(stats *snapshot.SupervisorStats) error {
	if stats.DaemonClaudeLaunchTime.IsZero() {
		return nil
	}
	sessions := s.scopedSessions()
	names := make([]string, 0, len(sessions))
	byName := make(map[string]registry.Session, len(sessions))
	for _, sess := range sessions {
		names = append(names, sess.Name)
		byName[sess.Name] = sess
	}

	tally, err := countInterventionsFromLog(s.paths.SupervisorLogFile(s.cfg.TmuxSession), names, stats.DaemonClaudeLaunchTime)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, count := range tally {
		delta := count - s.lastInterventionTally[name]
		if delta <= 0 {
			continue
		}
		s.lastInterventionTally[name] = count
		sess, ok := byName[name]
		if !ok {
			continue
		}
		if err := s.registry.UpdateStats(sess.ID, func(st *registry.SessionStats) {
			st.SteersCount += delta
		}); err != nil {
			s.logger.Printf("supervisor: crediting steers_count for %q: %v", name, err)
		}
	}
	return nil
}

// syncTokens scans the runtime's per-project directory for session files
// whose ids have not yet been tallied into the supervisor's own stats.
func (s *Supervisor) syncTokens(stats *snapshot.SupervisorStats) {
	if s.cfg.RuntimeProjectsRoot == "" {
		return
	}
	known := make(map[string]bool, len(stats.SeenSessionIDs))
	for _, id := range stats.SeenSessionIDs {
		known[id] = true
	}
	newIDs, err := discoverSessionFiles(s.cfg.RuntimeProjectsRoot, known)
	if err != nil {
		s.logger.Printf("supervisor: discovering session files: %v", err)
		return
	}
	for _, id := range newIDs {
		tally, err := tallySessionFile(filepath.Join(s.cfg.RuntimeProjectsRoot, id+".jsonl"))
		if err != nil {
			continue
		}
		stats.MarkSeen(id)
		stats.SupervisorInputTokens += tally.input
		stats.SupervisorOutputTokens += tally.output
		stats.SupervisorCacheTokens += tally.cache
	}
	stats.SupervisorTotalTokens = stats.SupervisorInputTokens + stats.SupervisorOutputTokens + stats.SupervisorCacheTokens
}

// maybeLaunch selects the non-green attention set and, if non-empty,
// launches the exclusive worker window with the rendered context as its
// initial prompt.
func (s *Supervisor) maybeLaunch(stats *snapshot.SupervisorStats, now time.Time) {
	var snap snapshot.DaemonSnapshot
	existed, err := snapshot.ReadJSON(s.paths.MonitorStateFile(s.cfg.TmuxSession), &snap)
	if err != nil || !existed {
		return
	}

	registrySessions := s.scopedSessions()
	candidates := selectAttentionSet(snap.Sessions, registrySessions)
	if len(candidates) == 0 {
		return
	}

	contextBlock := buildDaemonClaudeContext(candidates)
	window, err := s.tmux.NewWindow(s.cfg.TmuxSession, daemonClaudeWindowName, "", s.cfg.RuntimeCommand)
	if err != nil {
		s.logger.Printf("supervisor: launching worker: %v", err)
		stats.SupervisorClaudeRunning = false
		return
	}

	if err := s.tmux.PasteBuffer(s.cfg.TmuxSession, window, "daemon-claude-context", contextBlock); err != nil {
		s.logger.Printf("supervisor: pasting worker context: %v", err)
	} else if err := s.tmux.SendKey(s.cfg.TmuxSession, window, "Enter"); err != nil {
		s.logger.Printf("supervisor: submitting worker context: %v", err)
	}

	s.mu.Lock()
	s.lastInterventionTally = make(map[string]int)
	s.mu.Unlock()

	stats.DaemonClaudeWindow = window
	stats.DaemonClaudeLaunchTime = now
	stats.SupervisorClaudeRunning = true
	stats.SupervisorClaudeStartedAt = now.Format(time.RFC3339)
	stats.SupervisorLaunches++
}

// scopedSessions returns all live sessions whose tmux_session matches this
// supervisor's scope.
func (s *Supervisor) scopedSessions() []registry.Session {
	all := s.registry.ListSessions()
	out := make([]registry.Session, 0, len(all))
	for _, sess := range all {
		if sess.TmuxSession == s.cfg.TmuxSession {
			out = append(out, sess)
		}
	}
	return out
}
