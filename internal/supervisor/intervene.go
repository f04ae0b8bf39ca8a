package supervisor

import (
	"bufio"
	"os"
	"strings"
	"time"
)

var actionPhrases = []string{"approved", "rejected", "sent ", "provided", "unblocked"}
var noActionPhrases = []string{"no intervention needed", "no action needed"}

// logTimestampLayout matches the supervisor log's line prefix, e.g.
// "Wed 15 Jan 2025 10:30:00 UTC: agent-1 - Tool call approved".
const logTimestampLayout = "Mon 02 Jan 2006 15:04:05 MST"

// countInterventionsFromLog tallies, per session name, how many lines in
// the supervisor log after launchTime mention that session and contain one
// of the action phrases, excluding lines carrying a "no action" disclaimer.
func countInterventionsFromLog(path string, sessionNames []string, launchTime time.Time) (map[string]int, error) {
	tally := make(map[string]int, len(sessionNames))

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tally, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		ts, rest, ok := splitLogTimestamp(line)
		if !ok || ts.Before(launchTime) {
			continue
		}
		lower := strings.ToLower(rest)
		if containsAny(lower, noActionPhrases) {
			continue
		}
		if !containsAny(lower, actionPhrases) {
			continue
		}
		for _, name := range sessionNames {
			if strings.Contains(rest, name) {
				tally[name]++
			}
		}
	}
	return tally, scanner.Err()
}

// splitLogTimestamp splits a log line into its leading timestamp and the
// remainder after the "<timestamp>: " separator. Lines that don't parse
// (malformed, blank, missing the colon separator) are skipped by the
// caller rather than treated as an error.
func splitLogTimestamp(line string) (time.Time, string, bool) {
	idx := strings.Index(line, ": ")
	if idx < 0 {
		return time.Time{}, "", false
	}
	ts, err := time.Parse(logTimestampLayout, line[:idx])
	if err != nil {
		return time.Time{}, "", false
	}
	return ts, line[idx+2:], true
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
