// Package fcgitest is a minimal FastCGI client used only by tests: it
// drives a net.Conn with the wire format fcgi implements, so package
// fcgi's own tests can exercise a real Interface end to end without a
// front-end web server in front of it.
//
// The record framing here is adapted from the reverse-proxy client this
// package's sibling runtime is descended from: a small fixed-size
// header struct written with encoding/binary, and a read loop that
// accumulates STDOUT until END_REQUEST. Request ids come from fcgi's
// own IDPool rather than being generated independently, so a multi-
// request test drives exactly the id-reuse discipline a real
// multiplexing client would. It reuses fcgi's own name-value and
// record-splitting helpers rather than re-implementing them.
package fcgitest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/kstash/gofcgisrv/fcgi"
)

type wireHeader struct {
	Version       byte
	Type          byte
	RequestID     uint16
	ContentLength uint16
	PaddingLength byte
	Reserved      byte
}

// Client is a single-connection FastCGI client. It is not safe for
// concurrent use by multiple goroutines issuing Do at once; tests that
// need concurrent in-flight requests use the lower-level Begin,
// SendStdin and ReadResponse methods directly, one Client per goroutine.
type Client struct {
	conn net.Conn
	ids  *fcgi.IDPool
}

// NewClient wraps an already-dialed connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, ids: fcgi.NewIDPool()}
}

// Response is the accumulated result of one request/response cycle.
type Response struct {
	Stdout         []byte
	Stderr         []byte
	AppStatus      uint32
	ProtocolStatus fcgi.ProtocolStatus
}

// Do issues a complete request of the given role and blocks until its
// END_REQUEST arrives.
func (c *Client) Do(role fcgi.Role, keepConn bool, env map[string]string, stdin []byte) (*Response, error) {
	id, err := c.Begin(role, keepConn, env)
	if err != nil {
		return nil, err
	}
	if err := c.SendStdin(id, stdin); err != nil {
		return nil, fmt.Errorf("fcgitest: send STDIN: %w", err)
	}
	return c.ReadResponse(id)
}

// Begin sends BEGIN_REQUEST and a terminated PARAMS stream, returning
// the request id it acquired from the pool so the caller can drive the
// remainder of the exchange by hand (e.g. to interleave an Abort).
func (c *Client) Begin(role fcgi.Role, keepConn bool, env map[string]string) (uint16, error) {
	id, err := c.ids.Acquire()
	if err != nil {
		return 0, fmt.Errorf("fcgitest: acquire request id: %w", err)
	}
	if err := c.sendBegin(id, role, keepConn); err != nil {
		c.ids.Release(id)
		return 0, fmt.Errorf("fcgitest: send BEGIN_REQUEST: %w", err)
	}
	if err := c.sendParams(id, env); err != nil {
		c.ids.Release(id)
		return 0, fmt.Errorf("fcgitest: send PARAMS: %w", err)
	}
	return id, nil
}

// SendStdin writes data as the (terminated) STDIN stream for id.
func (c *Client) SendStdin(id uint16, data []byte) error {
	if len(data) > 0 {
		if err := c.sendStream(id, fcgi.TypeStdin, data); err != nil {
			return err
		}
	}
	return c.sendStream(id, fcgi.TypeStdin, nil)
}

// ReadResponse blocks until id's END_REQUEST arrives, then releases id
// back to the pool so a later Begin call may reuse it.
func (c *Client) ReadResponse(id uint16) (*Response, error) {
	resp, err := c.readResponse(id)
	if err == nil {
		c.ids.Release(id)
	}
	return resp, err
}

// Abort sends ABORT_REQUEST for id.
func (c *Client) Abort(id uint16) error {
	return c.writeRecord(id, fcgi.TypeAbortRequest, nil)
}

func (c *Client) sendBegin(id uint16, role fcgi.Role, keepConn bool) error {
	var body [8]byte
	binary.BigEndian.PutUint16(body[0:2], uint16(role))
	if keepConn {
		body[2] = 1
	}
	return c.writeRecord(id, fcgi.TypeBeginRequest, body[:])
}

func (c *Client) sendParams(id uint16, env map[string]string) error {
	pairs := make([]fcgi.NVPair, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, fcgi.NVPair{Name: []byte(k), Value: []byte(v)})
	}
	bufs, err := fcgi.EncodeNameValuePairs(pairs, fcgi.TypeParams, id)
	if err != nil {
		return err
	}
	if _, err := bufs.WriteTo(c.conn); err != nil {
		return err
	}
	// Terminate the PARAMS stream.
	term := fcgi.PartitionStream(nil, fcgi.TypeParams, id)
	_, err = term.WriteTo(c.conn)
	return err
}

func (c *Client) sendStream(id uint16, typ fcgi.RecordType, data []byte) error {
	bufs := fcgi.PartitionStream(data, typ, id)
	_, err := bufs.WriteTo(c.conn)
	return err
}

func (c *Client) writeRecord(id uint16, typ fcgi.RecordType, content []byte) error {
	pad := (8 - (len(content) % 8)) % 8
	h := wireHeader{
		Version:       fcgi.Version1,
		Type:          byte(typ),
		RequestID:     id,
		ContentLength: uint16(len(content)),
		PaddingLength: byte(pad),
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, &h); err != nil {
		return err
	}
	buf.Write(content)
	buf.Write(make([]byte, pad))
	_, err := c.conn.Write(buf.Bytes())
	return err
}

// readResponse reads records until id's END_REQUEST arrives, ignoring
// records for any other request id (this client only ever issues one
// request id at a time via Do, but a server under test may still be
// replying to a management record concurrently).
func (c *Client) readResponse(id uint16) (*Response, error) {
	resp := &Response{}
	for {
		var h wireHeader
		if err := binary.Read(c.conn, binary.BigEndian, &h); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		body := make([]byte, int(h.ContentLength)+int(h.PaddingLength))
		if len(body) > 0 {
			if _, err := fullRead(c.conn, body); err != nil {
				return nil, fmt.Errorf("read body: %w", err)
			}
		}
		if h.RequestID != id {
			continue
		}
		content := body[:h.ContentLength]
		switch fcgi.RecordType(h.Type) {
		case fcgi.TypeStdout:
			resp.Stdout = append(resp.Stdout, content...)
		case fcgi.TypeStderr:
			resp.Stderr = append(resp.Stderr, content...)
		case fcgi.TypeEndRequest:
			if len(content) >= 5 {
				resp.AppStatus = binary.BigEndian.Uint32(content[0:4])
				resp.ProtocolStatus = fcgi.ProtocolStatus(content[4])
			}
			return resp, nil
		}
	}
}

func fullRead(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadManagementReply reads one GET_VALUES_RESULT or UNKNOWN_TYPE
// record sent in reply to a management (request id 0) query.
func (c *Client) ReadManagementReply() (fcgi.RecordType, []fcgi.NVPair, error) {
	var h wireHeader
	if err := binary.Read(c.conn, binary.BigEndian, &h); err != nil {
		return 0, nil, err
	}
	body := make([]byte, int(h.ContentLength)+int(h.PaddingLength))
	if len(body) > 0 {
		if _, err := fullRead(c.conn, body); err != nil {
			return 0, nil, err
		}
	}
	content := body[:h.ContentLength]
	if fcgi.RecordType(h.Type) != fcgi.TypeGetValuesResult {
		return fcgi.RecordType(h.Type), nil, nil
	}
	pairs, err := fcgi.DecodeNameValuePairs(content)
	return fcgi.RecordType(h.Type), pairs, err
}

// SendGetValues sends a GET_VALUES management query for the given
// variable names.
func (c *Client) SendGetValues(names ...string) error {
	pairs := make([]fcgi.NVPair, len(names))
	for i, n := range names {
		pairs[i] = fcgi.NVPair{Name: []byte(n)}
	}
	bufs, err := fcgi.EncodeNameValuePairs(pairs, fcgi.TypeGetValues, 0)
	if err != nil {
		return err
	}
	_, err = bufs.WriteTo(c.conn)
	return err
}
