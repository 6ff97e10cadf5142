package fcgi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// maxNVLength is the largest length a single name or value byte string
// may declare in the length-prefix encoding (2^31 - 1: the high bit of
// the 4-byte form is reserved to mark the 4-byte form itself).
const maxNVLength = 1<<31 - 1

// NVPair is one FastCGI name-value pair, e.g. one CGI environment
// variable.
type NVPair struct {
	Name  []byte
	Value []byte
}

// ErrNameValueTooLong is returned by EncodeNameValuePairs when a name or
// value exceeds 2^31-1 bytes; the pair is rejected, nothing is encoded.
var ErrNameValueTooLong = errors.New("fcgi: name or value exceeds 2^31-1 bytes")

// encodeLength appends the length prefix for n (1 byte if n fits in 7
// bits, 4 bytes with the high bit of the first byte set otherwise) to
// dst and returns the result.
func encodeLength(dst []byte, n int) []byte {
	if n <= 0x7f {
		return append(dst, byte(n))
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n)|0x80000000)
	return append(dst, b[:]...)
}

// EncodeNameValuePairs encodes pairs as one or more records of type typ
// and the given requestID, returning a scatter/gather write plan
// (net.Buffers) ready to hand to a connection. Every record produced is
// padded to an 8-byte boundary and its content length never exceeds
// maxAlignedContentLength.
//
// Go's net.Buffers.WriteTo already performs an IOV_MAX-bounded
// scatter/gather write, so this encoder always completes in one call;
// there is no partial/resume contract to expose.
//
// If any single name or value exceeds 2^31-1 bytes, ErrNameValueTooLong
// is returned and no bytes are produced for any pair. An empty pairs
// slice yields an empty net.Buffers (the caller is responsible for
// terminating the stream with an empty record separately, matching
// PartitionStream's own empty-input behavior).
func EncodeNameValuePairs(pairs []NVPair, typ RecordType, requestID uint16) (net.Buffers, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	// Encode the length-prefix + name + value bytes for every pair into
	// one contiguous logical blob first; the 8-byte alignment and
	// maxAlignedContentLength record-splitting is then a generic
	// operation shared with PartitionStream.
	var blob []byte
	for _, p := range pairs {
		if len(p.Name) > maxNVLength || len(p.Value) > maxNVLength {
			return nil, fmt.Errorf("%w: name=%d value=%d", ErrNameValueTooLong, len(p.Name), len(p.Value))
		}
		blob = encodeLength(blob, len(p.Name))
		blob = encodeLength(blob, len(p.Value))
		blob = append(blob, p.Name...)
		blob = append(blob, p.Value...)
	}

	return splitIntoRecords(blob, typ, requestID, true), nil
}

// splitIntoRecords fragments blob into 8-byte-aligned records of type
// typ and request id requestID, each carrying at most
// maxAlignedContentLength content bytes. If terminate is true and blob
// is non-empty, no trailing empty record is appended (name-value pair
// streams are terminated by the caller sending a separate empty PARAMS
// record once, not once per encode call); if blob is empty and
// terminate is true, a single empty record is produced so an all-empty
// encode still closes the stream.
func splitIntoRecords(blob []byte, typ RecordType, requestID uint16, terminate bool) net.Buffers {
	if len(blob) == 0 {
		if terminate {
			return net.Buffers{encodeRecord(typ, requestID, nil)}
		}
		return nil
	}

	var out net.Buffers
	for offset := 0; offset < len(blob); {
		n := len(blob) - offset
		if n > maxAlignedContentLength {
			n = maxAlignedContentLength
		}
		chunk := blob[offset : offset+n]
		out = append(out, encodeRecord(typ, requestID, chunk))
		offset += n
	}
	return out
}

// PartitionStream fragments an arbitrary byte range into a scatter/gather
// plan of stream records (PARAMS, STDIN, DATA, STDOUT, or STDERR) of the
// given request id. Each record carries at most maxAlignedContentLength
// content bytes and is padded to an 8-byte boundary. If data is empty,
// the plan is a single empty record, which is how a stream is closed;
// this is the only way to close a stream, so callers must not special
// case "nothing to write" by skipping the call.
func PartitionStream(data []byte, typ RecordType, requestID uint16) net.Buffers {
	return splitIntoRecords(data, typ, requestID, true)
}

// DecodeNameValuePairs decodes a single logical content blob (the
// concatenation of one or more same-typed records' content, with
// headers and padding already stripped) into its name-value pairs. It
// is the exact inverse of EncodeNameValuePairs.
//
// Malformed input (a truncated length prefix, or a declared length that
// would run past the end of data) is reported by returning a nil slice
// and a non-nil error; callers distinguish "stream legitimately carried
// no pairs" from "malformed" by checking len(data) == 0 first.
func DecodeNameValuePairs(data []byte) ([]NVPair, error) {
	var pairs []NVPair
	pos := 0
	for pos < len(data) {
		nameLen, n, err := decodeLength(data[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		valueLen, n, err := decodeLength(data[pos:])
		if err != nil {
			return nil, err
		}
		pos += n

		end := pos + nameLen + valueLen
		if nameLen < 0 || valueLen < 0 || end < pos || end > len(data) {
			return nil, fmt.Errorf("fcgi: name-value pair length exceeds content bounds")
		}
		name := make([]byte, nameLen)
		copy(name, data[pos:pos+nameLen])
		pos += nameLen
		value := make([]byte, valueLen)
		copy(value, data[pos:pos+valueLen])
		pos += valueLen

		pairs = append(pairs, NVPair{Name: name, Value: value})
	}
	return pairs, nil
}

// decodeLength decodes one length prefix from the front of b, returning
// the decoded length and the number of bytes consumed (1 or 4).
func decodeLength(b []byte) (length, consumed int, err error) {
	if len(b) < 1 {
		return 0, 0, fmt.Errorf("fcgi: truncated name-value length prefix")
	}
	if b[0]&0x80 == 0 {
		return int(b[0]), 1, nil
	}
	if len(b) < 4 {
		return 0, 0, fmt.Errorf("fcgi: truncated 4-byte name-value length prefix")
	}
	v := binary.BigEndian.Uint32(b[0:4]) &^ 0x80000000
	return int(v), 4, nil
}
