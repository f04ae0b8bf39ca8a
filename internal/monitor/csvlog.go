package monitor

import (
	"fmt"
	"os"
	"time"

	"github.com/mkb23/overcode/internal/detect"
	"github.com/mkb23/overcode/internal/registry"
)

// ensureCSVHeader writes the given header line if path does not yet exist.
func ensureCSVHeader(path, header string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, []byte(header+"\n"), 0o644)
}

func appendCSVLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

// appendStatusHistory appends one row to agent_status_history.csv: the
// per-session record of every observed status transition.
func (m *Monitor) appendStatusHistory(s *registry.Session, result detect.Result, now time.Time) {
	path := m.paths.AgentStatusHistoryFile(m.cfg.TmuxSession)
	if err := ensureCSVHeader(path, "timestamp,agent,status,activity"); err != nil {
		m.logger.Printf("monitor: status history header: %v", err)
		return
	}
	line := fmt.Sprintf("%s,%s,%s,%s", now.Format(time.RFC3339), s.Name, result.Status, csvEscape(result.Activity))
	if err := appendCSVLine(path, line); err != nil {
		m.logger.Printf("monitor: status history append: %v", err)
	}
}

// appendPresenceLog appends one row to presence_log.csv.
func (m *Monitor) appendPresenceLog(now time.Time, p PresenceSample) {
	path := m.paths.PresenceLogFile(m.cfg.TmuxSession)
	if err := ensureCSVHeader(path, "timestamp,state"); err != nil {
		m.logger.Printf("monitor: presence log header: %v", err)
		return
	}
	line := fmt.Sprintf("%s,%d", now.Format(time.RFC3339), p.State)
	if err := appendCSVLine(path, line); err != nil {
		m.logger.Printf("monitor: presence log append: %v", err)
	}
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(field string) string {
	needsQuote := false
	for _, r := range field {
		if r == ',' || r == '"' || r == '\n' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return field
	}
	out := make([]byte, 0, len(field)+2)
	out = append(out, '"')
	for _, r := range field {
		if r == '"' {
			out = append(out, '"', '"')
		} else {
			out = append(out, byte(r))
		}
	}
	out = append(out, '"')
	return string(out)
}
