// Package overerr defines the shared error taxonomy used across Overcode's
// core packages. Kinds are distinguished by sentinel error values, queryable
// with errors.Is, not by custom error types.
package overerr

import "errors"

// NotFound — session/window/file absent. Always returned; never fatal.
var ErrNotFound = errors.New("not found")

// InvalidInput — validation failure on a caller-supplied value. Surfaced to
// the caller; must not mutate any state.
var ErrInvalidInput = errors.New("invalid input")

// Conflict — the requested operation is inconsistent with current state
// (e.g. sleeping a running heartbeat-configured agent, launching a worker
// while one is already running, budget transfer from a non-ancestor).
var ErrConflict = errors.New("conflict")

// Dependency — a required external binary is missing. Fatal at startup.
var ErrDependency = errors.New("missing dependency")

// External — a terminal multiplexer call failed (timeout, socket error).
// Logged and treated as NotFound for the current tick.
var ErrExternal = errors.New("external call failed")

// Serialization — invalid JSON (or similar) on load. Logged; callers fall
// back to an empty/default value rather than halting.
var ErrSerialization = errors.New("serialization error")

// Transient — a retryable failure (relay push, stats-file read, malformed
// hook file). Logged; the current tick's affected step is skipped.
var ErrTransient = errors.New("transient error")
