package tmuxadapter

import (
	"errors"
	"os/exec"
	"testing"
)

func hasTmux() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"alpha-1_2", false},
		{"", true},
		{"has space", true},
		{"../traversal", true},
		{string(make([]byte, 65)), true},
	}
	for _, c := range cases {
		err := validateName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("validateName(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestHasSessionNoServer(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}
	a := New("")
	if a.HasSession("overcode-test-nonexistent-xyz") {
		t.Error("expected session to not exist")
	}
}

func TestSessionAndWindowLifecycle(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}
	a := New("")
	session := "overcode-test-" + t.Name()
	_ = a.KillSession(session)

	if err := a.NewSession(session, "."); err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer a.KillSession(session)

	if !a.HasSession(session) {
		t.Fatal("expected session to exist after creation")
	}

	idx, err := a.NewWindow(session, "extra", ".", "")
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}

	windows, err := a.ListWindows(session)
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	found := false
	for _, w := range windows {
		if w.Index == idx {
			found = true
		}
	}
	if !found {
		t.Errorf("expected window %d in %+v", idx, windows)
	}

	if err := a.KillWindow(session, idx); err != nil {
		t.Fatalf("KillWindow: %v", err)
	}
}

func TestCapturePaneMissingSessionIsNotFoundValue(t *testing.T) {
	if !hasTmux() {
		t.Skip("tmux not installed")
	}
	a := New("")
	text, ok := a.CapturePane("overcode-test-nonexistent-xyz", 0, 50)
	if ok {
		t.Errorf("expected not-found, got text %q", text)
	}
}

func TestInvalidateCacheScopes(t *testing.T) {
	a := New("")
	a.windowCache["s1"] = []Window{{Index: 0}}
	a.windowCache["s2"] = []Window{{Index: 0}}
	a.paneCache["s1:0"] = "x"
	a.paneCache["s2:0"] = "y"

	a.InvalidateCache("s1", "0")
	if _, ok := a.paneCache["s1:0"]; ok {
		t.Error("expected s1:0 pane cache cleared")
	}
	if _, ok := a.windowCache["s1"]; !ok {
		t.Error("window cache for s1 should survive a window-scoped invalidate")
	}

	a.InvalidateCache("s2", "")
	if _, ok := a.windowCache["s2"]; ok {
		t.Error("expected s2 window cache cleared")
	}
	if _, ok := a.paneCache["s2:0"]; ok {
		t.Error("expected s2 pane cache cleared")
	}
}

func TestWrapErrorClassification(t *testing.T) {
	a := New("")
	if err := a.wrapError(errors.New("exit status 1"), "no server running on socket", []string{"list-sessions"}); !errors.Is(err, ErrNoServer) {
		t.Errorf("expected ErrNoServer, got %v", err)
	}
	if err := a.wrapError(errors.New("exit status 1"), "can't find session: foo", []string{"has-session"}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := a.wrapError(errors.New("exit status 1"), "can't find window: 3", []string{"select-window"}); !errors.Is(err, ErrWindowNotFound) {
		t.Errorf("expected ErrWindowNotFound, got %v", err)
	}
}
