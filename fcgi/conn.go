package fcgi

// This file implements the per-connection record assembler: a phase
// state machine that turns a raw byte stream into classified, completed
// records and drives the protocol reactions (management replies,
// BEGIN_REQUEST/ABORT_REQUEST handling, stream completion) that follow
// from them.
//
// One assembler exists per connection (embedded in connState, see
// interface.go) and is driven exclusively by that connection's own
// ingest goroutine, so it needs no locking of its own; it reaches into
// the owning Interface's shared state (the request store, management
// replies, the ready channel) only while holding the interface lock,
// for exactly as long as it takes to classify a header or react to a
// completed record.

type recvPhase int

const (
	phaseHeader recvPhase = iota
	phaseContent
	phasePadding
)

// recvState is the record assembler's per-connection state.
type recvState struct {
	phase recvPhase

	headerBuf  [headerLen]byte
	headerFill int

	hdr header

	contentRemaining int
	paddingRemaining int

	// valid is whether the current record (once fully classified)
	// should have its content routed and acted upon, or simply
	// discarded.
	valid bool

	// localBuf accumulates content for records materialized by the
	// runtime itself: management records and BEGIN_REQUEST.
	localBuf []byte

	// entry is the request-store entry content should be appended to
	// for PARAMS/STDIN/DATA records; nil for management/BEGIN_REQUEST.
	entry *requestEntry
}

// feed processes newly-read bytes buf, advancing the phase state
// machine and invoking the owning connection's record-complete handling
// as records finish. It is called from the connection's ingest loop
// with the interface lock NOT held; it acquires the lock itself for
// each header classification and each record completion, taking and
// releasing it rather than holding it across the whole call.
func (c *connState) feed(iface *Interface, buf []byte) {
	for len(buf) > 0 {
		switch c.recv.phase {
		case phaseHeader:
			n := copy(c.recv.headerBuf[c.recv.headerFill:], buf)
			c.recv.headerFill += n
			buf = buf[n:]
			if c.recv.headerFill == headerLen {
				c.onHeaderComplete(iface)
			}
		case phaseContent:
			n := c.recv.contentRemaining
			if n > len(buf) {
				n = len(buf)
			}
			c.consumeContent(iface, buf[:n])
			c.recv.contentRemaining -= n
			buf = buf[n:]
			if c.recv.contentRemaining == 0 {
				if c.recv.paddingRemaining == 0 {
					c.onRecordComplete(iface)
					c.resetRecv()
				} else {
					c.recv.phase = phasePadding
				}
			}
		case phasePadding:
			n := c.recv.paddingRemaining
			if n > len(buf) {
				n = len(buf)
			}
			buf = buf[n:]
			c.recv.paddingRemaining -= n
			if c.recv.paddingRemaining == 0 {
				c.onRecordComplete(iface)
				c.resetRecv()
			}
		}
	}
}

func (c *connState) resetRecv() {
	c.recv = recvState{}
}

// onHeaderComplete classifies the just-completed header against shared
// state under the interface lock.
func (c *connState) onHeaderComplete(iface *Interface) {
	c.recv.hdr = decodeHeader(c.recv.headerBuf[:])
	h := c.recv.hdr

	iface.mu.Lock()
	valid, entry := iface.classifyRecord(c, h)
	c.recv.valid = valid
	c.recv.entry = entry
	iface.mu.Unlock()

	c.recv.contentRemaining = int(h.contentLength)
	c.recv.paddingRemaining = int(h.paddingLength)
	if c.recv.contentRemaining == 0 {
		if c.recv.paddingRemaining == 0 {
			c.onRecordComplete(iface)
			c.resetRecv()
			return
		}
		c.recv.phase = phasePadding
		return
	}
	c.recv.phase = phaseContent
}

// consumeContent routes content bytes of a record currently being
// received. Invalid records are discarded; valid management/
// BEGIN_REQUEST content accumulates in the assembler's local buffer;
// valid PARAMS/STDIN/DATA content is appended directly to the request
// entry's stream buffer under the interface lock.
func (c *connState) consumeContent(iface *Interface, chunk []byte) {
	if !c.recv.valid {
		return
	}
	switch c.recv.hdr.recType {
	case TypeParams, TypeStdin, TypeData:
		iface.mu.Lock()
		appendStreamContent(c.recv.entry, c.recv.hdr.recType, chunk)
		iface.mu.Unlock()
	default:
		c.recv.localBuf = append(c.recv.localBuf, chunk...)
	}
}

func appendStreamContent(e *requestEntry, typ RecordType, chunk []byte) {
	if e == nil {
		return
	}
	switch typ {
	case TypeParams:
		e.paramsBuf.Write(chunk)
	case TypeStdin:
		e.stdinBuf.Write(chunk)
	case TypeData:
		e.dataBuf.Write(chunk)
	}
}

// onRecordComplete performs the record-complete reaction for the record
// that was just fully consumed (content + padding). It is called with
// the interface lock NOT held and holds it for the whole reaction.
func (c *connState) onRecordComplete(iface *Interface) {
	iface.mu.Lock()
	defer iface.mu.Unlock()
	iface.onRecordComplete(c, c.recv.hdr)
}
