// Package monitor implements the monitor daemon (C4): a periodic per-tmux-
// session loop that detects status, accumulates green/non-green/sleep
// time, syncs token/cost statistics, fires heartbeats, publishes a
// snapshot, and optionally pushes it to a remote relay.
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/paths"
	"github.com/mkb23/overcode/internal/registry"
	"github.com/mkb23/overcode/internal/relayclient"
	"github.com/mkb23/overcode/internal/snapshot"
	"github.com/mkb23/overcode/internal/timecontext"
	"github.com/mkb23/overcode/internal/tmuxadapter"
)

// Config configures one monitor instance, scoped to a single tmux_session.
type Config struct {
	TmuxSession       string
	Interval          time.Duration
	StatsSyncInterval time.Duration
	RuntimeProjectsRoot string
	Pricing           Pricing
	Relay             relayclient.Config
	OfficeHours       timecontext.OfficeHours
	Presence          PresenceSampler
}

func defaultConfig(tmuxSession string) Config {
	return Config{
		TmuxSession:         tmuxSession,
		Interval:            10 * time.Second,
		StatsSyncInterval:   60 * time.Second,
		Pricing:             DefaultPricing,
		OfficeHours:         timecontext.OfficeHours{StartHour: 9, EndHour: 17},
		Presence:            NoPresence{},
	}
}

// Monitor is one running instance of the monitor daemon.
type Monitor struct {
	cfg      Config
	paths    paths.OvercodePaths
	registry *registry.Registry
	tmux     *tmuxadapter.Adapter
	relay    *relayclient.Client
	logger   *log.Logger

	polling *detect.PollingDetector
	hook    *detect.HookDetector

	accum *accumulator

	mu             sync.Mutex
	lastPresence   timecontext.Presence
	lastSync       map[string]time.Time
	loopCount      int64
	lastRelayPush  time.Time
	lastRelayOK    bool
	lastRelayTried bool
}

// New builds a Monitor scoped to cfg.TmuxSession. If cfg.Interval is zero,
// sensible defaults are filled in.
func New(cfg Config, p paths.OvercodePaths, reg *registry.Registry, tmux *tmuxadapter.Adapter, logger *log.Logger) *Monitor {
	d := defaultConfig(cfg.TmuxSession)
	if cfg.Interval > 0 {
		d.Interval = cfg.Interval
	}
	if cfg.StatsSyncInterval > 0 {
		d.StatsSyncInterval = cfg.StatsSyncInterval
	}
	if cfg.Pricing != (Pricing{}) {
		d.Pricing = cfg.Pricing
	}
	if cfg.RuntimeProjectsRoot != "" {
		d.RuntimeProjectsRoot = cfg.RuntimeProjectsRoot
	}
	if cfg.Relay.URL != "" {
		d.Relay = cfg.Relay
	}
	if cfg.Presence != nil {
		d.Presence = cfg.Presence
	}

	polling := detect.NewPollingDetector(tmux)
	hook := detect.NewHookDetector(polling, p.HookStateFile)

	return &Monitor{
		cfg:      d,
		paths:    p,
		registry: reg,
		tmux:     tmux,
		relay:    relayclient.New(d.Relay),
		logger:   logger,
		polling:  polling,
		hook:     hook,
		accum:    newAccumulator(),
		lastSync: make(map[string]time.Time),
	}
}

// Run acquires the per-tmux-session singleton lock, writes the PID file,
// and runs the main loop until ctx is cancelled or a termination signal
// arrives.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.paths.EnsureSessionDir(m.cfg.TmuxSession); err != nil {
		return fmt.Errorf("monitor: ensure session dir: %w", err)
	}

	lockPath := m.paths.MonitorLockFile(m.cfg.TmuxSession)
	fileLock := flock.New(lockPath)
	locked, err := fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("monitor: acquiring lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("monitor: already running for tmux session %q", m.cfg.TmuxSession)
	}
	defer func() { _ = fileLock.Unlock() }()

	pidPath := m.paths.MonitorPIDFile(m.cfg.TmuxSession)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("monitor: writing pid file: %w", err)
	}
	defer func() { _ = os.Remove(pidPath) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	m.logger.Printf("monitor: starting for tmux session %q (pid %d)", m.cfg.TmuxSession, os.Getpid())

	for {
		m.tick(ctx)

		if m.interruptibleSleep(ctx, sigCh) {
			m.logger.Printf("monitor: shutting down")
			return nil
		}
	}
}

// interruptibleSleep waits for the configured interval, chunked at 10s and
// woken early by a touched activity-signal file, a cancelled context, or a
// termination signal. Returns true if the caller should shut down.
func (m *Monitor) interruptibleSleep(ctx context.Context, sigCh <-chan os.Signal) bool {
	chunk := 10 * time.Second
	deadline := time.Now().Add(m.cfg.Interval)
	signalPath := m.paths.ActivitySignalFile(m.cfg.TmuxSession)
	lastMod := fileModTime(signalPath)

	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		wait := chunk
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return true
		case <-sigCh:
			return true
		case <-time.After(wait):
		}
		if modified := fileModTime(signalPath); !modified.Equal(lastMod) {
			return false
		}
	}
	return false
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// tick runs one full iteration of the main loop: scope, presence, per-
// session detect/accumulate/sync/heartbeat, aggregate, publish, relay.
// Every step is isolated so one session's failure never aborts the tick.
func (m *Monitor) tick(ctx context.Context) {
	now := time.Now()
	m.mu.Lock()
	m.loopCount++
	loopCount := m.loopCount
	m.mu.Unlock()

	sessions := m.scopedSessions()

	presence, presenceOK := m.cfg.Presence.Sample()
	if presenceOK {
		m.mu.Lock()
		m.lastPresence = timecontext.Presence(presence.State)
		m.mu.Unlock()
		m.appendPresenceLog(now, presence)
	}

	sessStates := make([]snapshot.SessionDaemonState, 0, len(sessions))
	var errCount int

	for i := range sessions {
		s := &sessions[i]
		state, err := m.processSession(s, now)
		if err != nil {
			errCount++
			m.logger.Printf("monitor: session %q: %v", s.Name, err)
			continue
		}
		sessStates = append(sessStates, state)
	}

	sort.Slice(sessStates, func(i, j int) bool { return sessStates[i].ID < sessStates[j].ID })

	snap := m.buildSnapshot(now, loopCount, presence, presenceOK, sessStates)
	if err := snapshot.WriteJSON(m.paths.MonitorStateFile(m.cfg.TmuxSession), &snap); err != nil {
		m.logger.Printf("monitor: publish snapshot: %v", err)
	}

	m.maybeRelayPush(ctx, snap, now)

	if errCount > 0 {
		m.logger.Printf("monitor: tick %d completed with %d session errors", loopCount, errCount)
	}
}

// advanceLifecycleOnChildDone implements the done/terminated precedence
// (spec.md:402): a child self-reporting completion (spec.md:41, the hook
// detector's SessionEnd branch) advances a running session straight to
// done. It never downgrades a session already marked done or terminated by
// some other path, so a later "window disappeared" transition (guarded
// on LifecycleRunning in internal/actuator/listsessions.go) can never
// overwrite it back.
func advanceLifecycleOnChildDone(sess *registry.Session, result detect.Result) {
	if result.ChildReportedDone && sess.Status == registry.LifecycleRunning {
		sess.Status = registry.LifecycleDone
	}
}

// scopedSessions returns all sessions whose tmux_session matches this
// monitor's scope, in deterministic (id-sorted) order.
func (m *Monitor) scopedSessions() []registry.Session {
	all := m.registry.ListSessions()
	out := make([]registry.Session, 0, len(all))
	for _, s := range all {
		if s.TmuxSession == m.cfg.TmuxSession {
			out = append(out, s)
		}
	}
	return out
}

// processSession runs detect -> accumulate -> sync -> heartbeat for one
// session, in that order, and returns its published projection.
func (m *Monitor) processSession(s *registry.Session, now time.Time) (snapshot.SessionDaemonState, error) {
	d := m.detectorFor(s)
	detectSess := detect.Session{
		Name:                 s.Name,
		TmuxSession:          s.TmuxSession,
		TmuxWindow:           s.TmuxWindow,
		IsRoot:               s.ParentSessionID == "",
		StandingInstructions: s.StandingInstructions,
		HookStatusDetection:  s.HookStatusDetection,
	}
	result := d.DetectStatus(detectSess)

	isGreen := detect.IsGreen(result.Status)
	m.accum.update(s.ID, s, result.Status, isGreen, now, s.StartTime)

	if !isGreen && result.Activity != "" {
		s.Stats.PushOperationTime(now.Sub(s.Stats.StateSince).Seconds())
	}
	s.Stats.CurrentTask = result.Activity
	s.Stats.LastActivity = now

	m.maybeSyncStats(s, now)

	if s.CostBudgetUSD > 0 && s.Stats.EstimatedCostUSD >= s.CostBudgetUSD {
		s.BudgetExceeded = true
	}

	if heartbeatDue(s, now) {
		if err := m.sendHeartbeat(s, now); err != nil {
			m.logger.Printf("monitor: heartbeat for %q failed: %v", s.Name, err)
		}
	}

	if err := m.registry.UpdateSession(s.ID, func(sess *registry.Session) {
		sess.Stats = s.Stats
		sess.BudgetExceeded = s.BudgetExceeded
		advanceLifecycleOnChildDone(sess, result)
	}); err != nil {
		return snapshot.SessionDaemonState{}, err
	}

	m.appendStatusHistory(s, result, now)

	return snapshot.SessionDaemonState{
		ID:                  s.ID,
		Name:                s.Name,
		TmuxSession:         s.TmuxSession,
		TmuxWindow:          s.TmuxWindow,
		RepoName:            s.RepoName,
		Branch:              s.Branch,
		CurrentStatus:       result.Status,
		CurrentActivity:     result.Activity,
		GreenTimeSeconds:    s.Stats.GreenTimeSeconds,
		NonGreenTimeSeconds: s.Stats.NonGreenTimeSeconds,
		SleepTimeSeconds:    s.Stats.SleepTimeSeconds,
		UptimeSeconds:       now.Sub(s.StartTime).Seconds(),
		CostBudgetUSD:       s.CostBudgetUSD,
		EstimatedCostUSD:    s.Stats.EstimatedCostUSD,
		BudgetExceeded:      s.BudgetExceeded,
		IsAsleep:            s.IsAsleep,
		TimeContextEnabled:  s.TimeContextEnabled,
	}, nil
}

func (m *Monitor) detectorFor(s *registry.Session) detect.Detector {
	return detect.SelectDetector(s.HookStatusDetection, m.hook, m.polling)
}

// maybeSyncStats runs the token/cost sync at most once per StatsSyncInterval
// per session.
func (m *Monitor) maybeSyncStats(s *registry.Session, now time.Time) {
	m.mu.Lock()
	last, ok := m.lastSync[s.ID]
	m.mu.Unlock()
	if ok && now.Sub(last) < m.cfg.StatsSyncInterval {
		return
	}
	m.mu.Lock()
	m.lastSync[s.ID] = now
	m.mu.Unlock()

	if m.cfg.RuntimeProjectsRoot == "" {
		return
	}
	projectDir := projectDirFor(m.cfg.RuntimeProjectsRoot, s.StartDirectory)
	known := make(map[string]bool, len(s.ClaudeSessionIDs))
	for _, id := range s.ClaudeSessionIDs {
		known[id] = true
	}
	newIDs, err := discoverSessionFiles(projectDir, known)
	if err != nil || len(newIDs) == 0 {
		return
	}

	var addedInput, addedOutput, addedCacheCreation, addedCacheRead int64
	for _, id := range newIDs {
		tally, err := tallySessionFile(filepath.Join(projectDir, id+".jsonl"))
		if err != nil {
			continue
		}
		s.ClaudeSessionIDs = append(s.ClaudeSessionIDs, id)
		addedInput += tally.input
		addedOutput += tally.output
		addedCacheCreation += tally.cacheCreation
		addedCacheRead += tally.cacheRead
	}

	s.Stats.InputTokens += addedInput
	s.Stats.OutputTokens += addedOutput
	s.Stats.CacheCreationTokens += addedCacheCreation
	s.Stats.CacheReadTokens += addedCacheRead
	s.Stats.TotalTokens = s.Stats.InputTokens + s.Stats.OutputTokens + s.Stats.CacheCreationTokens + s.Stats.CacheReadTokens
	s.Stats.EstimatedCostUSD = EstimateCost(m.cfg.Pricing, s.Stats.InputTokens, s.Stats.OutputTokens, s.Stats.CacheCreationTokens, s.Stats.CacheReadTokens)
}

func (m *Monitor) buildSnapshot(now time.Time, loopCount int64, presence PresenceSample, presenceOK bool, sessions []snapshot.SessionDaemonState) snapshot.DaemonSnapshot {
	var presencePtr *snapshot.Presence
	if presenceOK {
		presencePtr = &snapshot.Presence{State: presence.State, IdleSeconds: presence.IdleSeconds, Available: true}
	}

	var supervisorStats snapshot.SupervisorStats
	_, _ = snapshot.ReadJSON(m.paths.SupervisorStatsFile(m.cfg.TmuxSession), &supervisorStats)

	m.mu.Lock()
	relayStatus := snapshot.RelayDisabled
	if m.relay.Enabled() {
		if m.lastRelayTried {
			if m.lastRelayOK {
				relayStatus = snapshot.RelayOK
			} else {
				relayStatus = snapshot.RelayError
			}
		}
	}
	lastPush := m.lastRelayPush
	m.mu.Unlock()

	return snapshot.DaemonSnapshot{
		PID:             os.Getpid(),
		Status:          "running",
		LoopCount:       loopCount,
		LastLoopTime:    now,
		CurrentInterval: m.cfg.Interval.Seconds(),
		Presence:        presencePtr,
		RelayEnabled:    m.relay.Enabled(),
		RelayLastPush:   lastPush,
		RelayStatus:     relayStatus,
		Supervisor:      supervisorStats,
		Sessions:        sessions,
	}
}

// maybeRelayPush pushes the snapshot to the relay if configured and the
// interval since the last push has elapsed; never blocks the loop beyond
// the relay client's own bounded timeout, and never returns an error the
// caller must handle.
func (m *Monitor) maybeRelayPush(ctx context.Context, snap snapshot.DaemonSnapshot, now time.Time) {
	if !m.relay.Enabled() {
		return
	}
	m.mu.Lock()
	due := now.Sub(m.lastRelayPush) >= m.cfg.Interval
	m.mu.Unlock()
	if !due {
		return
	}

	err := m.relay.Push(ctx, snap)

	m.mu.Lock()
	m.lastRelayPush = now
	m.lastRelayTried = true
	m.lastRelayOK = err == nil
	m.mu.Unlock()

	if err != nil {
		m.logger.Printf("monitor: relay push failed: %v", err)
	}
}
