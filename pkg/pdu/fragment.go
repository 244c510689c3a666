package pdu

// Fragment splits a marshaled frame into MTU-sized fragments for carriers
// with small write units (BLE GATT). The first fragment keeps the frame's own
// header; every continuation fragment is prefixed with a two-byte header
// carrying the continuation bit and the transaction ID. mtu <= 0 or a frame
// that already fits yields a single fragment.
func Fragment(frame []byte, tid byte, mtu int) [][]byte {
	if mtu <= 2 || len(frame) <= mtu {
		return [][]byte{frame}
	}

	frags := [][]byte{frame[:mtu]}
	rest := frame[mtu:]
	for len(rest) > 0 {
		n := len(rest)
		if n > mtu-2 {
			n = mtu - 2
		}
		frag := make([]byte, 0, n+2)
		frag = append(frag, frame[0]|controlContinuation, tid)
		frag = append(frag, rest[:n]...)
		frags = append(frags, frag)
		rest = rest[n:]
	}
	return frags
}

// FrameTID extracts the transaction ID from a first-fragment frame.
func FrameTID(frame []byte) (byte, error) {
	if len(frame) < 2 {
		return 0, ErrMalformed
	}
	if frame[0]&controlResponse != 0 {
		return frame[1], nil
	}
	if len(frame) < 3 {
		return 0, ErrMalformed
	}
	return frame[2], nil
}

// ResponseComplete reports whether a (possibly partially reassembled)
// response frame already contains its whole declared body.
func ResponseComplete(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	if len(frame) == 3 {
		return true
	}
	if len(frame) < 5 {
		return false
	}
	declared := int(frame[3]) | int(frame[4])<<8
	return len(frame)-5 >= declared
}

// Reassemble reverses Fragment. Every continuation fragment must carry the
// continuation bit and the transaction ID of the first fragment; a mismatch
// fails with ErrContinuationMismatch or ErrTransactionMismatch.
func Reassemble(frags [][]byte) ([]byte, error) {
	if len(frags) == 0 {
		return nil, ErrMalformed
	}
	first := frags[0]
	if len(first) < 2 {
		return nil, ErrMalformed
	}
	if first[0]&controlContinuation != 0 {
		return nil, ErrContinuationMismatch
	}

	// TID position differs between requests and responses, but both keep it
	// within the first three bytes; continuation fragments always carry it
	// second. Requests: [ctrl, op, tid, ...]; responses: [ctrl, tid, status].
	var tid byte
	if first[0]&controlResponse != 0 {
		tid = first[1]
	} else {
		if len(first) < 3 {
			return nil, ErrMalformed
		}
		tid = first[2]
	}

	frame := append([]byte(nil), first...)
	for _, frag := range frags[1:] {
		if len(frag) < 2 {
			return nil, ErrMalformed
		}
		if frag[0]&controlContinuation == 0 {
			return nil, ErrContinuationMismatch
		}
		if frag[1] != tid {
			return nil, ErrTransactionMismatch
		}
		frame = append(frame, frag[2:]...)
	}
	return frame, nil
}
