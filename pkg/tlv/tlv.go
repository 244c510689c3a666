// Package tlv implements the HAP TLV8 encoding: a flat sequence of records,
// each carrying a one-byte tag, a one-byte length (0-255) and up to 255 value
// bytes. Logical values longer than 255 bytes are fragmented across multiple
// consecutive records sharing the same tag; the decoder reassembles them in
// encounter order before exposing the value.
package tlv

// MaxFragment is the largest value payload a single TLV8 record can carry.
const MaxFragment = 255

// Item is one logical tag/value pair after fragment reassembly.
type Item struct {
	Tag   byte
	Value []byte
}

// Items is an ordered sequence of decoded logical items.
type Items []Item

// Encode encodes a single logical value, fragmenting payloads longer than
// MaxFragment into consecutive records sharing tag.
func Encode(tag byte, value []byte) []byte {
	return Append(nil, tag, value)
}

// Append appends the encoding of one logical value to buf and returns the
// extended buffer.
func Append(buf []byte, tag byte, value []byte) []byte {
	if len(value) == 0 {
		return append(buf, tag, 0)
	}
	for len(value) > 0 {
		n := len(value)
		if n > MaxFragment {
			n = MaxFragment
		}
		buf = append(buf, tag, byte(n))
		buf = append(buf, value[:n]...)
		value = value[n:]
	}
	return buf
}

// Marshal encodes a sequence of logical items into one buffer.
func Marshal(items ...Item) []byte {
	var buf []byte
	for _, it := range items {
		buf = Append(buf, it.Tag, it.Value)
	}
	return buf
}

// Decode parses buf into logical items, reassembling fragmented records.
//
// A record is treated as the continuation of its predecessor when both carry
// the same tag and the predecessor was a maximal fragment (255 bytes). The
// decode is deterministic and order-preserving. A length byte claiming more
// bytes than remain fails with ErrMalformed; no partial result is returned.
func Decode(buf []byte) (Items, error) {
	var items Items
	for off := 0; off < len(buf); {
		if len(buf)-off < 2 {
			return nil, ErrMalformed
		}
		tag := buf[off]
		length := int(buf[off+1])
		off += 2
		if length > len(buf)-off {
			return nil, ErrMalformed
		}
		value := buf[off : off+length]
		off += length

		if n := len(items); n > 0 {
			prev := &items[n-1]
			if prev.Tag == tag && len(prev.Value) > 0 && len(prev.Value)%MaxFragment == 0 {
				// Continuation fragment of the previous record.
				prev.Value = append(prev.Value, value...)
				continue
			}
		}

		// Copy so items do not alias the input buffer.
		v := make([]byte, length)
		copy(v, value)
		items = append(items, Item{Tag: tag, Value: v})
	}
	return items, nil
}

// First returns the first item carrying tag.
func (it Items) First(tag byte) (Item, bool) {
	for _, item := range it {
		if item.Tag == tag {
			return item, true
		}
	}
	return Item{}, false
}

// All returns every item carrying tag, in encounter order.
func (it Items) All(tag byte) Items {
	var out Items
	for _, item := range it {
		if item.Tag == tag {
			out = append(out, item)
		}
	}
	return out
}

// Has reports whether any item carries tag.
func (it Items) Has(tag byte) bool {
	_, ok := it.First(tag)
	return ok
}
