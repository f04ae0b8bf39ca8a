package registry

import "fmt"

import "github.com/mkb23/overcode/internal/overerr"

// MaxDepth is the maximum parent-chain depth; a depth-6 launch is rejected.
const MaxDepth = 5

// ComputeDepth returns the number of hops from id up to a root (a session
// with no parent). A session with no parent has depth 0.
func (r *Registry) ComputeDepth(id string) (int, error) {
	state := r.load()
	depth := 0
	seen := map[string]bool{}
	cur := id
	for {
		s, ok := state[cur]
		if !ok {
			return 0, fmt.Errorf("%w: session %q", overerr.ErrNotFound, cur)
		}
		if s.ParentSessionID == "" {
			return depth, nil
		}
		if seen[cur] {
			return 0, fmt.Errorf("%w: cycle detected in parent chain of %q", overerr.ErrInvalidInput, id)
		}
		seen[cur] = true
		cur = s.ParentSessionID
		depth++
		if depth > MaxDepth+1 {
			return 0, fmt.Errorf("%w: parent chain of %q exceeds max depth %d", overerr.ErrInvalidInput, id, MaxDepth)
		}
	}
}

// ValidateParent checks that parentID exists and that a child of it would
// not exceed MaxDepth.
func (r *Registry) ValidateParent(parentID string) error {
	if parentID == "" {
		return nil
	}
	depth, err := r.ComputeDepth(parentID)
	if err != nil {
		return err
	}
	if depth+1 > MaxDepth {
		return fmt.Errorf("%w: launching under %q would exceed max depth %d", overerr.ErrInvalidInput, parentID, MaxDepth)
	}
	return nil
}

// IsAncestor reports whether a is an ancestor of b, walking up from b.
func (r *Registry) IsAncestor(a, b string) bool {
	state := r.load()
	cur := b
	seen := map[string]bool{}
	for {
		s, ok := state[cur]
		if !ok || s.ParentSessionID == "" {
			return false
		}
		if s.ParentSessionID == a {
			return true
		}
		if seen[cur] {
			return false
		}
		seen[cur] = true
		cur = s.ParentSessionID
	}
}

// GetDescendants does a breadth-first search of the child index rooted at
// id, returning every descendant session.
func (r *Registry) GetDescendants(id string) []Session {
	state := r.load()
	childrenOf := make(map[string][]*Session)
	for _, s := range state {
		if s.ParentSessionID != "" {
			childrenOf[s.ParentSessionID] = append(childrenOf[s.ParentSessionID], s)
		}
	}

	var out []Session
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range childrenOf[cur] {
			out = append(out, *child)
			queue = append(queue, child.ID)
		}
	}
	return out
}
