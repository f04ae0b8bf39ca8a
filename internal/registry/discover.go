package registry

import (
	"context"
	"sync"
	"time"
)

// LivenessChecker reports whether a session's tmux window is still alive.
// Implemented by internal/tmuxadapter in production, faked in tests.
type LivenessChecker interface {
	HasSession(tmuxSession string) bool
}

// DiscoverOpts controls the concurrency-bounded liveness sweep.
type DiscoverOpts struct {
	// CheckLiveness enables a concurrent tmux HasSession check per
	// distinct tmux_session. When false, sessions are returned as-is.
	CheckLiveness bool
	// Timeout bounds each liveness check; defaults to 5s.
	Timeout time.Duration
	// Concurrency bounds how many liveness checks run in parallel;
	// defaults to 10.
	Concurrency int
}

// DiscoveredSession is a Session annotated with its liveness, for the
// read-only sweep the HTTP status surface uses instead of serializing one
// tmux round trip per registered session.
type DiscoveredSession struct {
	Session
	Alive bool
}

// Discover returns every live session in the registry, optionally
// health-checked against checker with bounded concurrency. Grounded on the
// gastown-fork registry's DiscoverAll semaphore pattern.
func (r *Registry) Discover(ctx context.Context, checker LivenessChecker, opts DiscoverOpts) []DiscoveredSession {
	sessions := r.ListSessions()
	out := make([]DiscoveredSession, len(sessions))
	for i, s := range sessions {
		out[i] = DiscoveredSession{Session: s}
	}

	if !opts.CheckLiveness || checker == nil {
		return out
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	// dedupe by tmux_session since HasSession is scoped there, not per-id
	seen := make(map[string]bool)
	for i := range out {
		ts := out[i].TmuxSession
		if seen[ts] {
			continue
		}
		seen[ts] = true

		wg.Add(1)
		sem <- struct{}{}
		go func(ts string) {
			defer wg.Done()
			defer func() { <-sem }()
			alive := checkLiveness(ctx, checker, ts, timeout)
			for j := range out {
				if out[j].TmuxSession == ts {
					out[j].Alive = alive
				}
			}
		}(ts)
	}
	wg.Wait()
	return out
}

// checkLiveness runs checker.HasSession bounded by timeout and ctx
// cancellation. HasSession itself takes no context, so a hung check is
// abandoned rather than allowed to block the whole sweep past the deadline;
// its goroutine is left to finish and its result discarded.
func checkLiveness(ctx context.Context, checker LivenessChecker, tmuxSession string, timeout time.Duration) bool {
	done := make(chan bool, 1)
	go func() { done <- checker.HasSession(tmuxSession) }()

	select {
	case alive := <-done:
		return alive
	case <-time.After(timeout):
		return false
	case <-ctx.Done():
		return false
	}
}
