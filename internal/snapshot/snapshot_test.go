package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mkb23/overcode/internal/detect"
)

func TestWriteJSONReadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "monitor_daemon_state.json")

	snap := DaemonSnapshot{
		PID:       1234,
		Status:    "running",
		LoopCount: 7,
		Sessions: []SessionDaemonState{
			{ID: "s1", Name: "alpha", CurrentStatus: detect.StatusRunning},
		},
	}
	if err := WriteJSON(path, &snap); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		t.Error("expected trailing newline")
	}

	var got DaemonSnapshot
	existed, err := ReadJSON(path, &got)
	if err != nil || !existed {
		t.Fatalf("ReadJSON: existed=%v err=%v", existed, err)
	}
	if got.PID != 1234 || len(got.Sessions) != 1 || got.Sessions[0].Name != "alpha" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestReadJSONMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	var got DaemonSnapshot
	existed, err := ReadJSON(filepath.Join(dir, "nope.json"), &got)
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if existed {
		t.Error("expected existed=false")
	}
}

func TestSupervisorStatsSeenIdempotent(t *testing.T) {
	var s SupervisorStats
	s.MarkSeen("cs-1")
	s.MarkSeen("cs-1")
	if len(s.SeenSessionIDs) != 1 {
		t.Errorf("expected idempotent mark, got %v", s.SeenSessionIDs)
	}
	if !s.HasSeen("cs-1") || s.HasSeen("cs-2") {
		t.Error("HasSeen mismatch")
	}
}

func TestFormatStatusLabel(t *testing.T) {
	if got := FormatStatusLabel(detect.StatusWaitingUser); got != "Waiting User" {
		t.Errorf("got %q", got)
	}
	if got := FormatStatusLabel(detect.StatusNoInstructions); got != "No Instructions" {
		t.Errorf("got %q", got)
	}
}
