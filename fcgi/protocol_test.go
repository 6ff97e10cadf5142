package fcgi

import (
	"bytes"
	"testing"
)

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := header{
		version:       Version1,
		recType:       TypeStdout,
		requestID:     42,
		contentLength: 100,
		paddingLength: 4,
	}
	b := h.encode()
	got := decodeHeader(b[:])
	if got != h {
		t.Errorf("decodeHeader(h.encode()) = %+v, want %+v", got, h)
	}
}

func TestPadLen(t *testing.T) {
	cases := []struct {
		n    int
		want byte
	}{
		{0, 0},
		{1, 7},
		{7, 1},
		{8, 0},
		{9, 7},
		{65535, 1},
	}
	for _, c := range cases {
		if got := padLen(c.n); got != c.want {
			t.Errorf("padLen(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestBeginRequestBodyRoundTrip(t *testing.T) {
	b := encodeBeginRequestBody(RoleFilter, true)
	role, keepConn := decodeBeginRequestBody(b[:])
	if role != RoleFilter || !keepConn {
		t.Errorf("decodeBeginRequestBody = (%v, %v), want (%v, true)", role, keepConn, RoleFilter)
	}

	b2 := encodeBeginRequestBody(RoleResponder, false)
	role2, keepConn2 := decodeBeginRequestBody(b2[:])
	if role2 != RoleResponder || keepConn2 {
		t.Errorf("decodeBeginRequestBody = (%v, %v), want (%v, false)", role2, keepConn2, RoleResponder)
	}
}

func TestEncodeRecordLayout(t *testing.T) {
	content := []byte("hello")
	rec := encodeRecord(TypeStdout, 7, content)

	wantLen := headerLen + len(content) + int(padLen(len(content)))
	if len(rec) != wantLen {
		t.Fatalf("len(rec) = %d, want %d", len(rec), wantLen)
	}

	h := decodeHeader(rec[:headerLen])
	if h.recType != TypeStdout || h.requestID != 7 || int(h.contentLength) != len(content) {
		t.Errorf("decoded header = %+v, unexpected", h)
	}
	if !bytes.Equal(rec[headerLen:headerLen+len(content)], content) {
		t.Errorf("record content mismatch")
	}
}

func TestRoleString(t *testing.T) {
	if RoleResponder.String() != "RESPONDER" {
		t.Errorf("RoleResponder.String() = %q", RoleResponder.String())
	}
	if Role(99).String() != "UNKNOWN_ROLE" {
		t.Errorf("Role(99).String() = %q, want UNKNOWN_ROLE", Role(99).String())
	}
}
