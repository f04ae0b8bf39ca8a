// Package actuator implements the launcher / actuator (C6): the only
// component that creates, sends to, kills, and restarts tmux windows on
// behalf of tracked sessions. It owns command synthesis by permissiveness
// mode and the paste-buffer batching protocol for long initial prompts.
package actuator

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/mkb23/overcode/internal/overerr"
	"github.com/mkb23/overcode/internal/registry"
	"github.com/mkb23/overcode/internal/tmuxadapter"
)

// Config configures one Actuator instance.
type Config struct {
	TmuxSession string
	// RuntimeBinary is the agent runtime executable, e.g. "claude".
	RuntimeBinary string
	// StartupDelay is how long to wait after window creation before pasting
	// an initial prompt, giving the runtime time to reach its input prompt.
	StartupDelay time.Duration
	// BatchInterSleep is the pause between paste-buffer batches.
	BatchInterSleep time.Duration
}

func defaultConfig(cfg Config) Config {
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = 2 * time.Second
	}
	if cfg.BatchInterSleep <= 0 {
		cfg.BatchInterSleep = 200 * time.Millisecond
	}
	return cfg
}

// tmuxClient is the subset of *tmuxadapter.Adapter the actuator needs,
// narrowed to an interface so tests can substitute a fake.
type tmuxClient interface {
	NewWindow(session, name, cwd, command string) (int, error)
	KillWindow(session string, window int) error
	ListWindows(session string) ([]tmuxadapter.Window, error)
	CapturePane(session string, window, lines int) (string, bool)
	SendKeys(session string, window int, text string, enter bool) error
	SendKey(session string, window int, key string) error
	PasteBuffer(session string, window int, bufferName, text string) error
}

// Actuator is the launcher for one tmux_session scope.
type Actuator struct {
	cfg      Config
	registry *registry.Registry
	tmux     tmuxClient
}

// New builds an Actuator, failing fast per the dependency pre-check: the
// multiplexer and the agent runtime binary must both be on PATH.
func New(cfg Config, reg *registry.Registry, tmux tmuxClient) (*Actuator, error) {
	cfg = defaultConfig(cfg)
	if cfg.RuntimeBinary == "" {
		cfg.RuntimeBinary = "claude"
	}
	if _, err := exec.LookPath("tmux"); err != nil {
		return nil, fmt.Errorf("%w: tmux not found on PATH", overerr.ErrDependency)
	}
	if _, err := exec.LookPath(cfg.RuntimeBinary); err != nil {
		return nil, fmt.Errorf("%w: agent runtime %q not found on PATH", overerr.ErrDependency, cfg.RuntimeBinary)
	}
	return &Actuator{cfg: cfg, registry: reg, tmux: tmux}, nil
}

// reservedKeys are the control tokens send_to_session dispatches as raw
// key presses instead of literal text.
var reservedKeys = map[string]string{
	"enter":  "Enter",
	"escape": "Escape",
	"tab":    "Tab",
	"up":     "Up",
	"down":   "Down",
	"left":   "Left",
	"right":  "Right",
	"bspace": "BSpace",
}

// commandForMode synthesizes the runtime invocation for a permissiveness
// mode.
func commandForMode(binary string, mode registry.PermissivenessMode) string {
	switch mode {
	case registry.PermissivenessPermissive:
		return binary + " --permission-mode acceptEdits"
	case registry.PermissivenessBypass:
		return binary + " --dangerously-skip-permissions"
	default:
		return binary
	}
}

// Launch creates a new tracked session, or returns the existing one if name
// is already in use (idempotent). If parentID is non-empty, depth is
// validated before the window is created.
func (a *Actuator) Launch(name, startDirectory, initialPrompt string, mode registry.PermissivenessMode, parentID string) (registry.Session, error) {
	if err := registry.ValidateName(name); err != nil {
		return registry.Session{}, err
	}
	if existing, err := a.registry.GetSessionByName(a.cfg.TmuxSession, name); err == nil {
		return existing, nil
	}

	if parentID != "" {
		if err := a.registry.ValidateParent(parentID); err != nil {
			return registry.Session{}, err
		}
	}

	switch mode {
	case registry.PermissivenessNormal, registry.PermissivenessPermissive, registry.PermissivenessBypass:
	default:
		return registry.Session{}, fmt.Errorf("%w: permissiveness mode %q", overerr.ErrInvalidInput, mode)
	}

	command := commandForMode(a.cfg.RuntimeBinary, mode)
	window, err := a.tmux.NewWindow(a.cfg.TmuxSession, name, startDirectory, command)
	if err != nil {
		return registry.Session{}, fmt.Errorf("%w: creating window: %v", overerr.ErrExternal, err)
	}

	s := registry.NewSession("", name, a.cfg.TmuxSession, window)
	s.Command = command
	s.StartDirectory = startDirectory
	s.PermissivenessMode = mode
	s.ParentSessionID = parentID

	created, err := a.registry.CreateSession(s)
	if err != nil {
		_ = a.tmux.KillWindow(a.cfg.TmuxSession, window)
		return registry.Session{}, err
	}

	if initialPrompt != "" {
		if err := a.sendInitialPrompt(window, initialPrompt); err != nil {
			return created, fmt.Errorf("%w: sending initial prompt: %v", overerr.ErrExternal, err)
		}
	}

	return created, nil
}

const maxBatchLines = 20

// sendInitialPrompt waits the configured startup delay, then pastes text
// in bounded-size batches via the multiplexer's paste-buffer mechanism,
// finishing with a single trailing Enter.
func (a *Actuator) sendInitialPrompt(window int, text string) error {
	time.Sleep(a.cfg.StartupDelay)

	batches := batchLines(text, maxBatchLines)
	for i, batch := range batches {
		bufferName := fmt.Sprintf("overcode-initial-%d", i)
		if err := a.tmux.PasteBuffer(a.cfg.TmuxSession, window, bufferName, batch); err != nil {
			return err
		}
		if i < len(batches)-1 {
			time.Sleep(a.cfg.BatchInterSleep)
		}
	}
	return a.tmux.SendKey(a.cfg.TmuxSession, window, "Enter")
}

// batchLines splits text into chunks of at most n lines each, preserving
// line content (including any trailing newline semantics of the original
// split) so each batch pastes as coherent text.
func batchLines(text string, n int) []string {
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	if len(lines) == 0 {
		return nil
	}

	var batches []string
	for i := 0; i < len(lines); i += n {
		end := i + n
		if end > len(lines) {
			end = len(lines)
		}
		batch := ""
		for _, l := range lines[i:end] {
			batch += l
		}
		batches = append(batches, batch)
	}
	return batches
}

// SendToSession sends text to a tracked session. A text value matching one
// of the reserved control tokens (case-sensitive: enter, escape, tab, up,
// down, left, right, bspace) is dispatched as that key with no literal text;
// anything else is sent literally followed by Enter if enter is true.
// steers_count is never incremented here — that is strictly the supervisor
// daemon's domain, to avoid double counting.
func (a *Actuator) SendToSession(name, text string, enter bool) error {
	s, err := a.registry.GetSessionByName(a.cfg.TmuxSession, name)
	if err != nil {
		return err
	}

	if key, ok := reservedKeys[text]; ok {
		if err := a.tmux.SendKey(a.cfg.TmuxSession, s.TmuxWindow, key); err != nil {
			return fmt.Errorf("%w: %v", overerr.ErrExternal, err)
		}
	} else if err := a.tmux.SendKeys(a.cfg.TmuxSession, s.TmuxWindow, text, enter); err != nil {
		return fmt.Errorf("%w: %v", overerr.ErrExternal, err)
	}

	return a.registry.UpdateSession(s.ID, func(sess *registry.Session) {
		sess.Stats.LastActivity = time.Now()
	})
}

// KillSession kills a tracked session's window and removes its record. With
// cascade (the default), descendants are killed and removed too; without
// it, children are left with a now-dangling parent_session_id, which
// readers must tolerate. Killing an already-gone window still succeeds.
func (a *Actuator) KillSession(name string, cascade bool) error {
	s, err := a.registry.GetSessionByName(a.cfg.TmuxSession, name)
	if err != nil {
		return err
	}

	if cascade {
		for _, child := range a.registry.GetDescendants(s.ID) {
			if err := a.tmux.KillWindow(child.TmuxSession, child.TmuxWindow); err != nil {
				return fmt.Errorf("%w: %v", overerr.ErrExternal, err)
			}
			if err := a.registry.DeleteSession(child.ID); err != nil {
				return err
			}
		}
	}

	if err := a.tmux.KillWindow(s.TmuxSession, s.TmuxWindow); err != nil {
		return fmt.Errorf("%w: %v", overerr.ErrExternal, err)
	}
	return a.registry.DeleteSession(s.ID)
}

// RestartSession sends Ctrl-C, briefly waits, and re-issues the runtime
// command for the session's stored permissiveness_mode. The session's id
// and name are preserved.
func (a *Actuator) RestartSession(name string) error {
	s, err := a.registry.GetSessionByName(a.cfg.TmuxSession, name)
	if err != nil {
		return err
	}

	if err := a.tmux.SendKey(a.cfg.TmuxSession, s.TmuxWindow, "C-c"); err != nil {
		return fmt.Errorf("%w: %v", overerr.ErrExternal, err)
	}
	time.Sleep(500 * time.Millisecond)

	command := commandForMode(a.cfg.RuntimeBinary, s.PermissivenessMode)
	if err := a.tmux.SendKeys(a.cfg.TmuxSession, s.TmuxWindow, command, true); err != nil {
		return fmt.Errorf("%w: %v", overerr.ErrExternal, err)
	}
	return nil
}

// GetSessionOutput returns the last `lines` lines of a tracked session's
// pane.
func (a *Actuator) GetSessionOutput(name string, lines int) (string, error) {
	s, err := a.registry.GetSessionByName(a.cfg.TmuxSession, name)
	if err != nil {
		return "", err
	}
	text, ok := a.tmux.CapturePane(a.cfg.TmuxSession, s.TmuxWindow, lines)
	if !ok {
		return "", fmt.Errorf("%w: pane for %q unavailable", overerr.ErrExternal, name)
	}
	return text, nil
}
