package supervisor

import (
	"regexp"
	"strings"

	"github.com/mkb23/overcode/internal/detect"
)

var claudePromptRe = regexp.MustCompile(`^\s*[>›]\s*`)

const doneTailLines = 10

// isDone implements the worker completion heuristic: window gone -> done;
// an active indicator anywhere in the captured text -> not done; a Claude
// prompt line in the last ~10 lines -> done; otherwise not done (a subprocess
// timeout on pane capture is also treated as "not done" upstream, per spec,
// to avoid false termination).
func isDone(paneText string, windowExists bool) bool {
	if !windowExists {
		return true
	}
	if detect.ActiveIndicatorPattern.MatchString(paneText) {
		return false
	}
	lines := strings.Split(strings.TrimRight(paneText, "\n"), "\n")
	start := len(lines) - doneTailLines
	if start < 0 {
		start = 0
	}
	for _, l := range lines[start:] {
		if claudePromptRe.MatchString(l) {
			return true
		}
	}
	return false
}
