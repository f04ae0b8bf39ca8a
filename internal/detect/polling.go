package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
)

const defaultPaneLines = 50

// ActiveIndicatorPattern matches the spinner/tool-running markers that
// signal a pane is mid-turn. Exported so other packages with their own
// pane-text completion heuristics (internal/supervisor's done check) share
// one definition instead of drifting apart.
var ActiveIndicatorPattern = regexp.MustCompile(`(?i)esc to interrupt|running\.\.\.|thinking|●|◐|◓|◑|◒`)

// PaneReader is the subset of tmuxadapter.Adapter the polling detector
// needs, kept as a narrow interface so tests can fake it.
type PaneReader interface {
	CapturePane(session string, window, lines int) (string, bool)
}

var (
	shellPromptRe     = regexp.MustCompile(`^[\w.-]+@[\w.-]+\s+\S+\s*[%$#]\s*$`)
	permissionQARe    = regexp.MustCompile(`(?i)do you want to proceed\?`)
	numberedOptionRe  = regexp.MustCompile(`^\s*\d+[.)]\s`)
	autocompleteRe    = regexp.MustCompile(`^>\s*.+\s+↵\s*send\s*$`)
	statusBarChromeRe = regexp.MustCompile(`⏵⏵\s*bypass permissions on`)
	emptyPromptRe     = regexp.MustCompile(`^\s*[>›]\s*$`)
	userInputLineRe   = regexp.MustCompile(`^[>›]\s+\S`)
	activeIndicatorRe = ActiveIndicatorPattern
	leadingPrefixRe   = regexp.MustCompile(`^(>\s|›\s|-\s|•\s)`)
	statusBarTailRe   = regexp.MustCompile(`(?m)^.*·\s*\d+\s*tokens.*·\s*\d+s.*$\n?`)
)

// PollingDetector classifies status from the last ~50 lines of pane text.
// It remembers a normalized content hash per session to detect whether the
// pane has changed since the previous tick.
type PollingDetector struct {
	reader PaneReader

	mu         sync.Mutex
	lastHashes map[string]string
}

func NewPollingDetector(reader PaneReader) *PollingDetector {
	return &PollingDetector{reader: reader, lastHashes: make(map[string]string)}
}

func (d *PollingDetector) GetPaneContent(tmuxSession string, tmuxWindow int, numLines int) (string, bool) {
	if numLines <= 0 {
		numLines = defaultPaneLines
	}
	return d.reader.CapturePane(tmuxSession, tmuxWindow, numLines)
}

// DetectStatus runs the 10-rule algorithm in order; the first matching
// rule wins.
func (d *PollingDetector) DetectStatus(s Session) Result {
	text, ok := d.GetPaneContent(s.TmuxSession, s.TmuxWindow, defaultPaneLines)
	if !ok {
		// Rule 1: pane unreadable.
		return Result{Status: StatusWaitingUser, Activity: "Unable to read pane"}
	}

	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	bodyLines, chromeLine := splitChrome(lines)

	// Rule 2: shell prompt at bottom.
	if chromeLine != "" && shellPromptRe.MatchString(strings.TrimSpace(chromeLine)) {
		return Result{Status: StatusTerminated, Activity: "", PaneText: text, PaneExists: true}
	}

	// Rule 3: permission prompt, outside status-bar chrome.
	if idx := findPermissionPrompt(bodyLines); idx >= 0 {
		return Result{Status: StatusWaitingUser, Activity: "Permission: " + cleanLine(bodyLines[idx]), PaneText: text, PaneExists: true}
	}

	// Rule 4: autocomplete suggestion line.
	for _, l := range lastNonEmpty(bodyLines, 3) {
		if autocompleteRe.MatchString(strings.TrimRight(l, " ")) {
			return Result{Status: StatusWaitingUser, Activity: "", PaneText: text, PaneExists: true}
		}
	}

	// Rule 5: stalled — user typed input, no response indicator, no active indicators.
	if isStalled(bodyLines) {
		return Result{Status: StatusWaitingUser, Activity: "Stalled", PaneText: text, PaneExists: true}
	}

	// Rule 6: empty prompt line at bottom.
	if len(bodyLines) > 0 && emptyPromptRe.MatchString(bodyLines[len(bodyLines)-1]) {
		return Result{Status: StatusWaitingUser, Activity: "Waiting for user input", PaneText: text, PaneExists: true}
	}

	// Rule 7: active indicators anywhere in the body.
	if line, ok := findActiveIndicator(bodyLines); ok {
		return Result{Status: StatusRunning, Activity: cleanLine(line), PaneText: text, PaneExists: true}
	}

	// Rule 8: content changed since previous observation.
	normalized := normalizeForHash(text)
	hash := hashString(normalized)
	d.mu.Lock()
	prev, seen := d.lastHashes[s.TmuxSession+":"+s.Name]
	d.lastHashes[s.TmuxSession+":"+s.Name] = hash
	d.mu.Unlock()
	if !seen || prev != hash {
		last := lastNonChromeLine(bodyLines)
		return Result{Status: StatusRunning, Activity: "Active: " + cleanLine(last), PaneText: text, PaneExists: true}
	}

	// Rule 9/10: idle.
	if s.StandingInstructions != "" {
		return Result{Status: StatusRunning, Activity: "", PaneText: text, PaneExists: true}
	}
	return Result{Status: StatusNoInstructions, Activity: "", PaneText: text, PaneExists: true}
}

// splitChrome separates the last 1-2 status-bar lines from the body.
func splitChrome(lines []string) (body []string, chrome string) {
	if len(lines) == 0 {
		return lines, ""
	}
	chrome = lines[len(lines)-1]
	if len(lines) > 1 {
		body = lines[:len(lines)-1]
	}
	return body, chrome
}

func findPermissionPrompt(lines []string) int {
	for i, l := range lines {
		if statusBarChromeRe.MatchString(l) {
			continue // explicitly ignored UI chrome
		}
		if permissionQARe.MatchString(l) {
			// require a numbered option list nearby (same or following lines)
			for j := i; j < len(lines) && j < i+6; j++ {
				if numberedOptionRe.MatchString(lines[j]) {
					return i
				}
			}
		}
	}
	return -1
}

func isStalled(lines []string) bool {
	if len(lines) == 0 {
		return false
	}
	sawUserInput := false
	for _, l := range lines {
		if userInputLineRe.MatchString(l) {
			sawUserInput = true
		}
	}
	if !sawUserInput {
		return false
	}
	if _, ok := findActiveIndicator(lines); ok {
		return false
	}
	return true
}

func findActiveIndicator(lines []string) (string, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if activeIndicatorRe.MatchString(lines[i]) {
			return lines[i], true
		}
	}
	return "", false
}

func lastNonChromeLine(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func lastNonEmpty(lines []string, n int) []string {
	start := len(lines) - n
	if start < 0 {
		start = 0
	}
	return lines[start:]
}

// normalizeForHash strips the dynamic status-bar tail (token/second
// counters) before hashing so purely cosmetic updates don't register as
// "running".
func normalizeForHash(text string) string {
	return statusBarTailRe.ReplaceAllString(text, "")
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

const maxCleanedLen = 80

// cleanLine strips common display-prefix markers and truncates for
// display only.
func cleanLine(line string) string {
	cleaned := leadingPrefixRe.ReplaceAllString(strings.TrimSpace(line), "")
	if len(cleaned) > maxCleanedLen {
		cleaned = cleaned[:maxCleanedLen-1] + "…"
	}
	return cleaned
}
