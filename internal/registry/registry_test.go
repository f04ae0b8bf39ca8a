package registry

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkb23/overcode/internal/overerr"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "sessions.json"), filepath.Join(dir, "archived_sessions.json"))
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"alpha", false},
		{"alpha-1_2.3", false},
		{"", true},
		{"has space", true},
		{"semi;colon", true},
		{"../escape", true},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateName(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}

	sixtyFour := ""
	for i := 0; i < 64; i++ {
		sixtyFour += "a"
	}
	if err := ValidateName(sixtyFour); err != nil {
		t.Errorf("64-char name should be accepted: %v", err)
	}
	if err := ValidateName(sixtyFour + "a"); err == nil {
		t.Error("65-char name should be rejected")
	}
}

func TestCreateAndGetSession(t *testing.T) {
	r := newTestRegistry(t)
	s := NewSession("", "alpha", "main", 1)
	created, err := r.CreateSession(s)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected an assigned id")
	}

	got, err := r.GetSession(created.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Name != "alpha" {
		t.Errorf("got name %q, want alpha", got.Name)
	}
}

func TestCreateSessionDuplicateNameRejected(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.CreateSession(NewSession("", "alpha", "main", 1)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := r.CreateSession(NewSession("", "alpha", "main", 2))
	if !errors.Is(err, overerr.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate name, got %v", err)
	}
}

func TestSaveLoadRoundTripIsFixedPoint(t *testing.T) {
	r := newTestRegistry(t)
	s := NewSession("", "alpha", "main", 1)
	s.RepoName = "overcode"
	s.Stats.InputTokens = 42
	created, _ := r.CreateSession(s)

	first := r.ListSessions()
	// Force a reload from disk by constructing a fresh Registry over the
	// same files.
	r2 := New(r.path, r.archivePath)
	second := r2.ListSessions()

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected 1 session each, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID || first[0].RepoName != second[0].RepoName {
		t.Errorf("round trip mismatch: %+v vs %+v", first[0], second[0])
	}
	if second[0].ID != created.ID {
		t.Errorf("expected id %q, got %q", created.ID, second[0].ID)
	}
}

func TestStandingInstructionsResetsComplete(t *testing.T) {
	r := newTestRegistry(t)
	created, _ := r.CreateSession(NewSession("", "alpha", "main", 1))
	if err := r.SetStandingOrdersComplete(created.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := r.SetStandingInstructions(created.ID, "do the thing"); err != nil {
		t.Fatal(err)
	}
	got, _ := r.GetSession(created.ID)
	if got.StandingOrdersComplete {
		t.Error("expected standing_orders_complete to be reset to false")
	}
}

func TestAddClaudeSessionIDIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	created, _ := r.CreateSession(NewSession("", "alpha", "main", 1))

	added, err := r.AddClaudeSessionID(created.ID, "cs-1")
	if err != nil || !added {
		t.Fatalf("expected first add to succeed, got added=%v err=%v", added, err)
	}
	added, err = r.AddClaudeSessionID(created.ID, "cs-1")
	if err != nil || added {
		t.Fatalf("expected duplicate add to be a no-op, got added=%v err=%v", added, err)
	}
}

func TestHierarchyDepthLimit(t *testing.T) {
	r := newTestRegistry(t)
	var parentID string
	for i := 0; i < MaxDepth; i++ {
		s := NewSession("", "s"+string(rune('a'+i)), "main", i+1)
		s.ParentSessionID = parentID
		created, err := r.CreateSession(s)
		if err != nil {
			t.Fatalf("create depth %d: %v", i, err)
		}
		if err := r.ValidateParent(parentID); parentID != "" && err != nil {
			t.Fatalf("unexpected depth rejection at %d: %v", i, err)
		}
		parentID = created.ID
	}

	// parentID is now at depth MaxDepth-1; one more child reaches MaxDepth, ok.
	if err := r.ValidateParent(parentID); err != nil {
		t.Fatalf("expected depth %d child to be allowed: %v", MaxDepth, err)
	}

	s := NewSession("", "toodeep", "main", 99)
	s.ParentSessionID = parentID
	created, err := r.CreateSession(s)
	if err != nil {
		t.Fatalf("create at depth %d: %v", MaxDepth, err)
	}

	if err := r.ValidateParent(created.ID); err == nil {
		t.Error("expected depth 6 to be rejected")
	}
}

func TestBudgetTransferRequiresAncestor(t *testing.T) {
	r := newTestRegistry(t)
	a, _ := r.CreateSession(NewSession("", "a", "main", 1))
	b, _ := r.CreateSession(NewSession("", "b", "main", 2))

	err := r.TransferBudget(a.ID, b.ID, 5)
	if !errors.Is(err, overerr.ErrConflict) {
		t.Errorf("expected ErrConflict for non-ancestor transfer, got %v", err)
	}
}

func TestBudgetTransferZeroRejected(t *testing.T) {
	r := newTestRegistry(t)
	parent := NewSession("", "parent", "main", 1)
	parent.CostBudgetUSD = 10
	p, _ := r.CreateSession(parent)
	child := NewSession("", "child", "main", 2)
	child.ParentSessionID = p.ID
	c, _ := r.CreateSession(child)

	if err := r.TransferBudget(p.ID, c.ID, 0); !errors.Is(err, overerr.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero transfer, got %v", err)
	}
}

func TestBudgetTransferExactBalanceEmptiesSource(t *testing.T) {
	r := newTestRegistry(t)
	parent := NewSession("", "parent", "main", 1)
	parent.CostBudgetUSD = 10
	p, _ := r.CreateSession(parent)
	child := NewSession("", "child", "main", 2)
	child.ParentSessionID = p.ID
	c, _ := r.CreateSession(child)

	if err := r.TransferBudget(p.ID, c.ID, 10); err != nil {
		t.Fatalf("TransferBudget: %v", err)
	}
	got, _ := r.GetSession(p.ID)
	if got.CostBudgetUSD != 0 {
		t.Errorf("expected source budget to be emptied, got %v", got.CostBudgetUSD)
	}
	gotChild, _ := r.GetSession(c.ID)
	if gotChild.CostBudgetUSD != 10 {
		t.Errorf("expected target budget 10, got %v", gotChild.CostBudgetUSD)
	}
}

func TestBudgetTransferFromUnlimitedSourceOnlySetsTarget(t *testing.T) {
	r := newTestRegistry(t)
	p, _ := r.CreateSession(NewSession("", "parent", "main", 1)) // budget 0 = unlimited
	child := NewSession("", "child", "main", 2)
	child.ParentSessionID = p.ID
	c, _ := r.CreateSession(child)

	if err := r.TransferBudget(p.ID, c.ID, 3); err != nil {
		t.Fatalf("TransferBudget: %v", err)
	}
	gotParent, _ := r.GetSession(p.ID)
	if gotParent.CostBudgetUSD != 0 {
		t.Errorf("expected unlimited source to remain 0, got %v", gotParent.CostBudgetUSD)
	}
	gotChild, _ := r.GetSession(c.ID)
	if gotChild.CostBudgetUSD != 3 {
		t.Errorf("expected target budget 3, got %v", gotChild.CostBudgetUSD)
	}
}

func TestCascadeDescendants(t *testing.T) {
	r := newTestRegistry(t)
	p, _ := r.CreateSession(NewSession("", "p", "main", 1))
	cS := NewSession("", "c", "main", 2)
	cS.ParentSessionID = p.ID
	c, _ := r.CreateSession(cS)
	gS := NewSession("", "g", "main", 3)
	gS.ParentSessionID = c.ID
	g, _ := r.CreateSession(gS)

	descendants := r.GetDescendants(p.ID)
	if len(descendants) != 2 {
		t.Fatalf("expected 2 descendants, got %d", len(descendants))
	}
	ids := map[string]bool{c.ID: true, g.ID: true}
	for _, d := range descendants {
		if !ids[d.ID] {
			t.Errorf("unexpected descendant %q", d.ID)
		}
	}

	if !r.IsAncestor(p.ID, g.ID) {
		t.Error("expected p to be an ancestor of g")
	}
}

func TestArchiveSessionIsReadOnlyThereafter(t *testing.T) {
	r := newTestRegistry(t)
	s, _ := r.CreateSession(NewSession("", "alpha", "main", 1))
	if err := r.ArchiveSession(s.ID); err != nil {
		t.Fatalf("ArchiveSession: %v", err)
	}
	if _, err := r.GetSession(s.ID); !errors.Is(err, overerr.ErrNotFound) {
		t.Errorf("expected archived session to be gone from live registry, got %v", err)
	}
	archived := r.ListArchivedSessions()
	if len(archived) != 1 || archived[0].EndTime.IsZero() {
		t.Errorf("expected one archived session with an end_time, got %+v", archived)
	}
}

func TestInvalidJSONYieldsEmptyRegistryNotError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.json")
	if err := os.WriteFile(path, []byte("{ not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := New(path, filepath.Join(dir, "archived_sessions.json"))
	sessions := r.ListSessions()
	if len(sessions) != 0 {
		t.Errorf("expected empty registry on malformed JSON, got %d sessions", len(sessions))
	}
}
