// Package fcgi implements the server side of the FastCGI protocol,
// version 1: the record framing, request multiplexing, and response
// streaming that let a front-end web server delegate request handling to
// an out-of-process application over a stream connection.
//
// https://fastcgi-archives.github.io/FastCGI_Specification.html
package fcgi

import "encoding/binary"

// Protocol version and header layout. Big-endian, bit-exact with the
// FastCGI specification.
const (
	Version1  = 1
	headerLen = 8

	// maxContentLength is the largest content_length a single record may
	// carry (content_length is a 16-bit field).
	maxContentLength = 65535

	// maxAlignedContentLength is the largest content length we ever
	// choose to emit ourselves: the largest multiple of 8 not exceeding
	// maxContentLength, so a record's header + content needs no padding
	// of its own to reach an 8-byte boundary (padding is still added at
	// the very end of a multi-record plan). 65535 - (65535 % 8) = 65528.
	maxAlignedContentLength = maxContentLength - (maxContentLength % 8)
)

// RecordType identifies the kind of a FastCGI record.
type RecordType uint8

const (
	TypeBeginRequest    RecordType = 1
	TypeAbortRequest    RecordType = 2
	TypeEndRequest      RecordType = 3
	TypeParams          RecordType = 4
	TypeStdin           RecordType = 5
	TypeStdout          RecordType = 6
	TypeStderr          RecordType = 7
	TypeData            RecordType = 8
	TypeGetValues       RecordType = 9
	TypeGetValuesResult RecordType = 10
	TypeUnknownType     RecordType = 11
)

func (t RecordType) String() string {
	switch t {
	case TypeBeginRequest:
		return "BEGIN_REQUEST"
	case TypeAbortRequest:
		return "ABORT_REQUEST"
	case TypeEndRequest:
		return "END_REQUEST"
	case TypeParams:
		return "PARAMS"
	case TypeStdin:
		return "STDIN"
	case TypeStdout:
		return "STDOUT"
	case TypeStderr:
		return "STDERR"
	case TypeData:
		return "DATA"
	case TypeGetValues:
		return "GET_VALUES"
	case TypeGetValuesResult:
		return "GET_VALUES_RESULT"
	case TypeUnknownType:
		return "UNKNOWN_TYPE"
	default:
		return "UNKNOWN"
	}
}

// isStreamType reports whether t carries a zero-length-terminated byte
// stream (PARAMS, STDIN, DATA, STDOUT, STDERR).
func (t RecordType) isStreamType() bool {
	switch t {
	case TypeParams, TypeStdin, TypeStdout, TypeStderr, TypeData:
		return true
	default:
		return false
	}
}

// Role is a FastCGI application role.
type Role uint16

const (
	RoleResponder  Role = 1
	RoleAuthorizer Role = 2
	RoleFilter     Role = 3
)

func (r Role) String() string {
	switch r {
	case RoleResponder:
		return "RESPONDER"
	case RoleAuthorizer:
		return "AUTHORIZER"
	case RoleFilter:
		return "FILTER"
	default:
		return "UNKNOWN_ROLE"
	}
}

// BEGIN_REQUEST flags.
const flagKeepConn = 1

// ProtocolStatus is the protocol_status field of an END_REQUEST record.
type ProtocolStatus uint8

const (
	StatusRequestComplete ProtocolStatus = 0
	StatusCantMultiplex   ProtocolStatus = 1
	StatusOverloaded      ProtocolStatus = 2
	StatusUnknownRole     ProtocolStatus = 3
)

// Well-known GET_VALUES/GET_VALUES_RESULT variable names.
const (
	VarMaxConns  = "FCGI_MAX_CONNS"
	VarMaxReqs   = "FCGI_MAX_REQS"
	VarMpxsConns = "FCGI_MPXS_CONNS"
)

// header is the 8-byte fixed record header.
type header struct {
	version       byte
	recType       RecordType
	requestID     uint16
	contentLength uint16
	paddingLength byte
}

func (h header) encode() [headerLen]byte {
	var b [headerLen]byte
	b[0] = h.version
	b[1] = byte(h.recType)
	binary.BigEndian.PutUint16(b[2:4], h.requestID)
	binary.BigEndian.PutUint16(b[4:6], h.contentLength)
	b[6] = h.paddingLength
	b[7] = 0
	return b
}

func decodeHeader(b []byte) header {
	_ = b[headerLen-1] // bounds check hint
	return header{
		version:       b[0],
		recType:       RecordType(b[1]),
		requestID:     binary.BigEndian.Uint16(b[2:4]),
		contentLength: binary.BigEndian.Uint16(b[4:6]),
		paddingLength: b[6],
	}
}

// padLen returns the number of padding bytes needed to round n up to a
// multiple of 8.
func padLen(n int) byte {
	return byte((8 - (n % 8)) % 8)
}

// encodeBeginRequestBody encodes the 8-byte BEGIN_REQUEST body.
func encodeBeginRequestBody(role Role, keepConn bool) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint16(b[0:2], uint16(role))
	if keepConn {
		b[2] = flagKeepConn
	}
	return b
}

// decodeBeginRequestBody decodes an 8-byte BEGIN_REQUEST body.
func decodeBeginRequestBody(b []byte) (role Role, keepConn bool) {
	_ = b[7]
	role = Role(binary.BigEndian.Uint16(b[0:2]))
	keepConn = b[2]&flagKeepConn != 0
	return role, keepConn
}

// encodeEndRequestBody encodes the 8-byte END_REQUEST body.
func encodeEndRequestBody(appStatus uint32, protoStatus ProtocolStatus) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint32(b[0:4], appStatus)
	b[4] = byte(protoStatus)
	return b
}

// encodeUnknownTypeBody encodes the 8-byte UNKNOWN_TYPE body.
func encodeUnknownTypeBody(unknownType RecordType) [8]byte {
	var b [8]byte
	b[0] = byte(unknownType)
	return b
}

// encodeRecord builds a single record (header + content + padding) for
// content no longer than maxAlignedContentLength. It is used for
// fixed-body records and for each chunk splitIntoRecords produces;
// content over maxContentLength panics.
func encodeRecord(typ RecordType, requestID uint16, content []byte) []byte {
	if len(content) > maxContentLength {
		panic("fcgi: encodeRecord content exceeds maxContentLength")
	}
	pad := padLen(len(content))
	h := header{
		version:       Version1,
		recType:       typ,
		requestID:     requestID,
		contentLength: uint16(len(content)),
		paddingLength: pad,
	}
	hb := h.encode()
	out := make([]byte, 0, headerLen+len(content)+int(pad))
	out = append(out, hb[:]...)
	out = append(out, content...)
	out = append(out, make([]byte, pad)...)
	return out
}
