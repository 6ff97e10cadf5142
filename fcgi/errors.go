package fcgi

import "errors"

// Errors returned by the core runtime.
var (
	// ErrAlreadyConstructed is returned by New when an Interface already
	// exists; at most one may exist at a time.
	ErrAlreadyConstructed = errors.New("fcgi: an Interface already exists")

	// ErrRoleRequired is returned by New when Config.Role is left at its
	// zero value. The runtime has no sensible default role to fall back
	// to; the caller must say which role it implements.
	ErrRoleRequired = errors.New("fcgi: Config.Role is required")

	// ErrInterfaceClosed is returned by AcceptRequests, and by a Request
	// write method, once the Interface has been shut down via Close.
	ErrInterfaceClosed = errors.New("fcgi: interface closed")

	// ErrInterfaceCorrupt is returned by AcceptRequests (and surfaced by
	// Status) once an unrecoverable invariant violation has been
	// detected.
	ErrInterfaceCorrupt = errors.New("fcgi: interface corrupt")

	// ErrRequestAlreadyDone is returned by a Request write method once
	// Complete or RejectRole has already run for that request.
	ErrRequestAlreadyDone = errors.New("fcgi: request already complete")

	// ErrRequestGone is returned by a Request write method when the
	// request has already been removed from the store, e.g. Complete or
	// RejectRole ran on another goroutine after this write's done check.
	ErrRequestGone = errors.New("fcgi: request no longer tracked")

	// ErrConnectionClosed is returned by a Request write method once the
	// owning connection has been removed.
	ErrConnectionClosed = errors.New("fcgi: connection closed")

	// ErrWriteFailed is returned by a Request write method when the
	// underlying scatter/gather write did not complete, or the connection
	// was already send-corrupt. A failed write marks the connection
	// send-corrupt unless the peer was already gone (EPIPE, ECONNRESET,
	// or a closed connection).
	ErrWriteFailed = errors.New("fcgi: write failed")
)
