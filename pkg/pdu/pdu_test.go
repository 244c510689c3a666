package pdu

import (
	"bytes"
	"errors"
	"testing"
)

func TestRequest_MarshalLayout(t *testing.T) {
	req := Request{OpCode: OpCharacteristicRead, TID: 0x42, IID: 0x0102}
	frame := req.Marshal()

	want := []byte{0x00, 0x03, 0x42, 0x02, 0x01}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame = %x, want %x", frame, want)
	}
}

func TestRequest_Roundtrip(t *testing.T) {
	cases := []Request{
		{OpCode: OpServiceSignatureRead, TID: 0x01, IID: 0},
		{OpCode: OpCharacteristicWrite, TID: 0xFF, IID: 12, Body: []byte{0x01, 0x01, 0x01}},
		{OpCode: OpCharacteristicRead, TID: 0x7E, IID: 65535},
	}
	for _, req := range cases {
		got, err := ParseRequest(req.Marshal())
		if err != nil {
			t.Fatalf("%v: %v", req, err)
		}
		if got.OpCode != req.OpCode || got.TID != req.TID || got.IID != req.IID {
			t.Errorf("roundtrip header mismatch: %+v != %+v", got, req)
		}
		if !bytes.Equal(got.Body, req.Body) {
			t.Errorf("roundtrip body mismatch: %x != %x", got.Body, req.Body)
		}
	}
}

func TestResponse_Roundtrip(t *testing.T) {
	resp := Response{TID: 0x42, Status: StatusSuccess, Body: []byte{0x01, 0x01, 0x01}}
	got, err := ParseResponse(resp.Marshal(), 0x42)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusSuccess || !bytes.Equal(got.Body, resp.Body) {
		t.Errorf("roundtrip mismatch: %+v", got)
	}
}

func TestParseResponse_TIDMismatch(t *testing.T) {
	resp := Response{TID: 0x42, Status: StatusSuccess}
	if _, err := ParseResponse(resp.Marshal(), 0x43); !errors.Is(err, ErrTransactionMismatch) {
		t.Errorf("err = %v, want ErrTransactionMismatch", err)
	}
}

func TestParseResponse_RequestFrameRejected(t *testing.T) {
	req := Request{OpCode: OpCharacteristicRead, TID: 0x01, IID: 1}
	if _, err := ParseResponse(req.Marshal(), 0x01); !errors.Is(err, ErrNotAResponse) {
		t.Errorf("err = %v, want ErrNotAResponse", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00, 0x03},                                     // short header
		{0x00, 0x03, 0x01, 0x01, 0x00, 0x05},             // body length without body
		{0x00, 0x03, 0x01, 0x01, 0x00, 0x05, 0x00, 0xAA}, // body shorter than declared
	}
	for i, frame := range cases {
		if _, err := ParseRequest(frame); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}

	if _, err := ParseResponse([]byte{0x02, 0x01, 0x00, 0x03, 0x00, 0xAA}, 0x01); !errors.Is(err, ErrMalformed) {
		t.Errorf("declared 3-byte body with 1 present: err = %v", err)
	}
}

func TestResponse_Err(t *testing.T) {
	if err := (Response{Status: StatusSuccess}).Err(); err != nil {
		t.Errorf("success Err = %v", err)
	}

	err := (Response{Status: StatusInsufficientAuthentication}).Err()
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != StatusInsufficientAuthentication {
		t.Errorf("Err = %v", err)
	}
}

func TestFragment_Reassemble(t *testing.T) {
	body := make([]byte, 300)
	for i := range body {
		body[i] = byte(i)
	}
	req := Request{OpCode: OpCharacteristicWrite, TID: 0x11, IID: 9, Body: body}
	frame := req.Marshal()

	for _, mtu := range []int{23, 64, 185, 512, 0} {
		frags := Fragment(frame, req.TID, mtu)
		if mtu > 2 && mtu < len(frame) && len(frags) < 2 {
			t.Errorf("mtu %d: expected fragmentation, got %d fragments", mtu, len(frags))
		}
		for i, frag := range frags {
			if mtu > 2 && len(frag) > mtu {
				t.Errorf("mtu %d: fragment %d is %d bytes", mtu, i, len(frag))
			}
		}

		got, err := Reassemble(frags)
		if err != nil {
			t.Fatalf("mtu %d: %v", mtu, err)
		}
		if !bytes.Equal(got, frame) {
			t.Errorf("mtu %d: reassembled frame differs", mtu)
		}
	}
}

func TestReassemble_ContinuationTIDMismatch(t *testing.T) {
	req := Request{OpCode: OpCharacteristicWrite, TID: 0x11, IID: 9, Body: make([]byte, 100)}
	frags := Fragment(req.Marshal(), req.TID, 40)
	if len(frags) < 2 {
		t.Fatal("expected fragmentation")
	}

	frags[1][1] = 0x12
	if _, err := Reassemble(frags); !errors.Is(err, ErrTransactionMismatch) {
		t.Errorf("err = %v, want ErrTransactionMismatch", err)
	}

	frags[1][1] = 0x11
	frags[1][0] &^= 0x80
	if _, err := Reassemble(frags); !errors.Is(err, ErrContinuationMismatch) {
		t.Errorf("err = %v, want ErrContinuationMismatch", err)
	}
}

func TestOpCodeAndStatusStrings(t *testing.T) {
	if OpServiceSignatureRead.String() != "ServiceSignatureRead" {
		t.Errorf("OpCode.String = %s", OpServiceSignatureRead)
	}
	if StatusInvalidInstanceID.String() != "InvalidInstanceID" {
		t.Errorf("Status.String = %s", StatusInvalidInstanceID)
	}
	if OpCode(0x7F).String() != "Unknown" {
		t.Errorf("unknown opcode String = %s", OpCode(0x7F))
	}
}
