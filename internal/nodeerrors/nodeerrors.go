// Package nodeerrors collects the error-kind sentinels shared across the
// replication engine, so that callers at the HTTP boundary can classify a
// failure (§7 of the design) without depending on every internal package.
package nodeerrors

import "errors"

// Path errors: VPath parsing and resolution. Surfaced as 400 at the boundary.
var (
	ErrEmptyPath       = errors.New("path is empty")
	ErrMissingAtPrefix = errors.New("path does not start with @")
	ErrWrongVolume     = errors.New("path does not belong to this volume")
)

// Backend errors: I/O failure, missing metadata. Surfaced as 500, retried
// by the Synchronizer on the next cycle.
var (
	ErrNotFound    = errors.New("not found")
	ErrNotADir     = errors.New("not a directory")
	ErrBadPrefix   = errors.New("path does not share the expected root")
	ErrUnsupported = errors.New("operation not supported by this backend")
)

// Remote errors: non-2xx from a peer, or a response that doesn't parse.
// Logged; the Synchronizer falls over to the next peer.
var (
	ErrRemoteFailure = errors.New("remote request failed")
	ErrRemoteParse   = errors.New("could not parse remote response")
)

// Stash errors: persistence failure. Logged; the cycle continues.
var ErrStash = errors.New("stash persistence failure")

// Auth errors: unknown user, password mismatch, missing allow entry.
// Surfaced as 400.
var (
	ErrUnknownUser  = errors.New("unknown user")
	ErrUnauthorized = errors.New("user is not allowed to access this volume")
)

// Config errors: invalid YAML, validation failure. Fatal at startup.
var ErrConfig = errors.New("invalid configuration")
