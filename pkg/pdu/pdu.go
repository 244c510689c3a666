// Package pdu implements the HAP PDU framing used for every characteristic
// access: a small header carrying a control field, opcode, transaction ID and
// target instance ID, followed by an optional length-prefixed TLV body.
//
// Frame layouts (all multi-byte fields little-endian):
//
//	Request:  control | opcode | TID | IID (2B) | [bodyLen (2B) | body]
//	Response: control | TID | status | [bodyLen (2B) | body]
//
// The control field has two meaningful bits: bit 7 marks a continuation
// fragment, bit 1 marks a response. The transaction ID is an 8-bit value
// generated randomly by the request originator and echoed by the response.
package pdu

import (
	"crypto/rand"
	"encoding/binary"
)

// Control field bits.
const (
	controlContinuation = 0x80
	controlResponse     = 0x02
)

// Request is a HAP request PDU.
type Request struct {
	OpCode OpCode
	TID    byte
	IID    uint16 // characteristic or service instance ID
	Body   []byte
}

// NewRequest builds a request with a freshly generated transaction ID.
func NewRequest(op OpCode, iid uint16, body []byte) Request {
	return Request{OpCode: op, TID: NewTID(), IID: iid, Body: body}
}

// NewTID generates a random 8-bit transaction ID.
func NewTID() byte {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return b[0]
}

// Marshal encodes the request as a single unfragmented frame.
func (r Request) Marshal() []byte {
	buf := make([]byte, 0, 5+2+len(r.Body))
	buf = append(buf, 0x00, byte(r.OpCode), r.TID)
	buf = binary.LittleEndian.AppendUint16(buf, r.IID)
	if len(r.Body) > 0 {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.Body)))
		buf = append(buf, r.Body...)
	}
	return buf
}

// ParseRequest decodes a single-frame request.
func ParseRequest(frame []byte) (Request, error) {
	if len(frame) < 5 {
		return Request{}, ErrMalformed
	}
	ctrl := frame[0]
	if ctrl&controlResponse != 0 {
		return Request{}, ErrNotAResponse
	}
	req := Request{
		OpCode: OpCode(frame[1]),
		TID:    frame[2],
		IID:    binary.LittleEndian.Uint16(frame[3:5]),
	}
	rest := frame[5:]
	if len(rest) == 0 {
		return req, nil
	}
	if len(rest) < 2 {
		return Request{}, ErrMalformed
	}
	bodyLen := int(binary.LittleEndian.Uint16(rest[:2]))
	if bodyLen != len(rest)-2 {
		return Request{}, ErrMalformed
	}
	req.Body = append([]byte(nil), rest[2:]...)
	return req, nil
}

// Response is a HAP response PDU.
type Response struct {
	TID    byte
	Status Status
	Body   []byte
}

// Marshal encodes the response as a single unfragmented frame.
func (r Response) Marshal() []byte {
	buf := make([]byte, 0, 3+2+len(r.Body))
	buf = append(buf, controlResponse, r.TID, byte(r.Status))
	if len(r.Body) > 0 {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.Body)))
		buf = append(buf, r.Body...)
	}
	return buf
}

// ParseResponse decodes a single-frame response and validates it against the
// originating request's transaction ID.
func ParseResponse(frame []byte, tid byte) (Response, error) {
	if len(frame) < 3 {
		return Response{}, ErrMalformed
	}
	ctrl := frame[0]
	if ctrl&controlResponse == 0 {
		return Response{}, ErrNotAResponse
	}
	if frame[1] != tid {
		return Response{}, ErrTransactionMismatch
	}
	resp := Response{TID: frame[1], Status: Status(frame[2])}
	rest := frame[3:]
	if len(rest) == 0 {
		return resp, nil
	}
	if len(rest) < 2 {
		return Response{}, ErrMalformed
	}
	bodyLen := int(binary.LittleEndian.Uint16(rest[:2]))
	if bodyLen != len(rest)-2 {
		return Response{}, ErrMalformed
	}
	resp.Body = append([]byte(nil), rest[2:]...)
	return resp, nil
}

// Err returns a StatusError for non-success responses, nil otherwise.
func (r Response) Err() error {
	if r.Status == StatusSuccess {
		return nil
	}
	return &StatusError{Code: r.Status}
}
