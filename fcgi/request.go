package fcgi

// This file implements Request: the object a worker uses to read a
// request's environment and body and to write its response,
// independent of the connection bookkeeping the worker never needs to
// see.

import (
	"net"
	"sync/atomic"
	"time"
)

// Request is a single in-flight FastCGI request handed to application
// code by Interface.AcceptRequests. A Request is safe for concurrent
// use by multiple goroutines: AbortStatus may be polled from a watchdog
// goroutine while another goroutine writes the response.
type Request struct {
	iface      *Interface
	generation uint64
	key        RequestKey
	role       Role
	env        map[string]string
	stdin      []byte
	data       []byte

	done int32
}

// Key returns the connection/request-id pair identifying r, suitable for
// log and metric correlation.
func (r *Request) Key() RequestKey { return r.key }

// Role returns the FastCGI role this request was begun with. It always
// equals the Interface's configured Role; a request naming any other
// role is rejected at BEGIN_REQUEST time and never reaches
// AcceptRequests.
func (r *Request) Role() Role { return r.role }

// Env returns the decoded PARAMS stream as a name/value map. The
// returned map must not be mutated.
func (r *Request) Env() map[string]string { return r.env }

// Stdin returns the request body accumulated from the STDIN stream at
// the moment this handle was assigned. For the Responder and Filter
// roles this is the full body, since assignment only happens once STDIN
// has closed.
func (r *Request) Stdin() []byte { return r.stdin }

// Data returns the DATA stream content accumulated at assignment time.
// It is only guaranteed complete for the Filter role, the only role
// whose completion rule waits on DATA; for other roles this may be a
// partial or empty snapshot if DATA bytes arrive after assignment. This
// is a documented limitation, not a protocol violation: the runtime
// does not validate request content against role-specific expectations.
func (r *Request) Data() []byte { return r.data }

// AbortStatus reports whether the front-end web server has sent
// ABORT_REQUEST for r, or the owning connection has been torn down.
// Safe to poll from any goroutine at any time during the request's
// life.
func (r *Request) AbortStatus() bool {
	r.iface.mu.Lock()
	defer r.iface.mu.Unlock()
	e, ok := r.iface.store.get(r.key)
	if !ok {
		return true
	}
	return e.aborted
}

// checkValidity runs the checks required before any write: the
// interface this handle belongs to must still be the live one, the
// request must still be tracked, and its connection must not already
// have been torn down.
func (r *Request) checkValidity() error {
	if atomic.LoadInt32(&r.done) != 0 {
		return ErrRequestAlreadyDone
	}
	r.iface.mu.Lock()
	defer r.iface.mu.Unlock()
	if r.generation != r.iface.generation {
		return ErrInterfaceClosed
	}
	e, ok := r.iface.store.get(r.key)
	if !ok {
		return ErrRequestGone
	}
	if e.interfaceClosed {
		return ErrConnectionClosed
	}
	return nil
}

func (r *Request) lookupConn() (*connState, bool) {
	r.iface.mu.Lock()
	cs, ok := r.iface.conns[r.key.ConnID]
	r.iface.mu.Unlock()
	return cs, ok
}

// write implements the shared body of WriteStdout/WriteStderr: validate,
// locate the owning connection, and perform the write under that
// connection's send lock alone — the interface lock is never held
// across a write. A write failure queues the connection for closure and
// is reported back to the caller as an error.
func (r *Request) write(typ RecordType, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.checkValidity(); err != nil {
		return 0, err
	}
	cs, ok := r.lookupConn()
	if !ok {
		return 0, ErrConnectionClosed
	}
	bufs := PartitionStream(p, typ, r.key.FcgiID)
	if !cs.send(bufs, r.iface.cfg.WriteTimeout) {
		r.iface.queueClose(r.key.ConnID)
		return 0, ErrWriteFailed
	}
	return len(p), nil
}

// WriteStdout sends p on the STDOUT stream. It may be called any number
// of times before Complete or RejectRole.
func (r *Request) WriteStdout(p []byte) (int, error) {
	return r.write(TypeStdout, p)
}

// WriteStderr sends p on the STDERR stream. It may be called any number
// of times before Complete or RejectRole.
func (r *Request) WriteStderr(p []byte) (int, error) {
	return r.write(TypeStderr, p)
}

// isDone reports whether Complete or RejectRole has already run for r.
func (r *Request) isDone() bool {
	return atomic.LoadInt32(&r.done) != 0
}

// markDone atomically transitions r to done, returning true only for
// the caller that performs the transition, so Complete/RejectRole are
// idempotent no matter how many goroutines call them concurrently.
func (r *Request) markDone() bool {
	return atomic.CompareAndSwapInt32(&r.done, 0, 1)
}

// finish implements the shared tail of Complete and RejectRole: close
// both output streams, send END_REQUEST, and release the request from
// the store, closing the connection unless the peer asked to keep it
// alive and completion was otherwise clean.
func (r *Request) finish(protoStatus ProtocolStatus, appStatus uint32) error {
	if !r.markDone() {
		return nil
	}

	var writeErr error
	if cs, ok := r.lookupConn(); ok {
		var bufs net.Buffers
		bufs = append(bufs, PartitionStream(nil, TypeStdout, r.key.FcgiID)...)
		bufs = append(bufs, PartitionStream(nil, TypeStderr, r.key.FcgiID)...)
		body := encodeEndRequestBody(appStatus, protoStatus)
		bufs = append(bufs, encodeRecord(TypeEndRequest, r.key.FcgiID, body[:]))
		if !cs.send(bufs, r.iface.cfg.WriteTimeout) {
			writeErr = ErrWriteFailed
		}
	}

	r.iface.mu.Lock()
	e, existed := r.iface.store.get(r.key)
	keepConn := existed && e.keepConn && protoStatus == StatusRequestComplete && writeErr == nil
	r.iface.store.remove(r.key)
	r.iface.mu.Unlock()

	if !keepConn {
		r.iface.queueClose(r.key.ConnID)
	}
	return writeErr
}

// Complete ends the request successfully, reporting appStatus as the
// application-level exit status in the END_REQUEST record. Calling
// Complete more than once (or after RejectRole) is a no-op.
func (r *Request) Complete(appStatus uint32) error {
	return r.finish(StatusRequestComplete, appStatus)
}

// RejectRole ends the request with protocol status UNKNOWN_ROLE,
// without ever having written a response. This exists for application
// code that discovers at runtime — after BEGIN_REQUEST-time role
// validation already passed — that it cannot service this particular
// request under its assigned role. Calling RejectRole more than once
// (or after Complete) is a no-op.
func (r *Request) RejectRole() error {
	return r.finish(StatusUnknownRole, r.iface.cfg.AbortAppStatus)
}

// send writes bufs on cs under cs.sendMu alone, used by every Request
// write path since none of them hold the interface lock while writing.
func (cs *connState) send(bufs net.Buffers, timeout time.Duration) bool {
	cs.sendMu.Lock()
	defer cs.sendMu.Unlock()
	return cs.writeLocked(bufs, timeout)
}
