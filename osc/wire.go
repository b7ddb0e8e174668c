// Package osc implements the OSC 1.0 wire subset FIBRIL's control
// surface needs: 4-byte aligned address/type-tag strings and
// big-endian int32 arguments, for both single messages and bundles.
package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

/*------------------------------------------------------------------
 *
 * Purpose:	OSC 1.0 wire encode/decode.
 *
 * Description:	Only the subset the control surface actually uses:
 *		int32 arguments and the ",iii..." type-tag form. Bundles
 *		decode into their flattened list of messages; a single
 *		message encoder is sufficient for the outbound side.
 *
 *------------------------------------------------------------------*/

const bundleTag = "#bundle"

// Message is one decoded/encoded OSC message: an address pattern plus
// its int32 argument list.
type Message struct {
	Address string
	Args    []int32
}

// Encode produces the wire bytes for a single OSC message.
func Encode(m Message) []byte {
	var buf bytes.Buffer

	writePaddedString(&buf, m.Address)
	writePaddedString(&buf, typeTagString(len(m.Args)))

	for _, a := range m.Args {
		_ = binary.Write(&buf, binary.BigEndian, a)
	}

	return buf.Bytes()
}

// EncodeBundle wraps messages in a "#bundle" envelope with the
// immediate time tag (value 1), each message length-prefixed per OSC 1.0.
func EncodeBundle(messages []Message) []byte {
	var buf bytes.Buffer

	writePaddedString(&buf, bundleTag)
	// Immediate time tag: seconds=0, fraction=1 (OSC's "now" sentinel).
	_ = binary.Write(&buf, binary.BigEndian, uint64(1))

	for _, m := range messages {
		encoded := Encode(m)
		_ = binary.Write(&buf, binary.BigEndian, int32(len(encoded)))
		buf.Write(encoded)
	}

	return buf.Bytes()
}

// Decode parses a single packet, which may be a bundle (recursively
// flattened) or a single message.
func Decode(data []byte) ([]Message, error) {
	if len(data) >= len(bundleTag) && bytes.HasPrefix(data, []byte(bundleTag)) {
		return decodeBundle(data)
	}

	m, err := decodeMessage(data)
	if err != nil {
		return nil, err
	}

	return []Message{m}, nil
}

func decodeBundle(data []byte) ([]Message, error) {
	r := bytes.NewReader(data)

	if _, err := readPaddedString(r); err != nil {
		return nil, fmt.Errorf("osc: bad bundle header: %w", err)
	}

	var timeTag uint64
	if err := binary.Read(r, binary.BigEndian, &timeTag); err != nil {
		return nil, fmt.Errorf("osc: bad bundle time tag: %w", err)
	}

	var out []Message

	for r.Len() > 0 {
		var size int32
		if err := binary.Read(r, binary.BigEndian, &size); err != nil {
			return nil, fmt.Errorf("osc: bad bundle element size: %w", err)
		}

		if size < 0 || int(size) > r.Len() {
			return nil, fmt.Errorf("osc: bundle element size %d exceeds remaining %d bytes", size, r.Len())
		}

		elem := make([]byte, size)
		if _, err := r.Read(elem); err != nil {
			return nil, fmt.Errorf("osc: reading bundle element: %w", err)
		}

		nested, err := Decode(elem)
		if err != nil {
			return nil, err
		}

		out = append(out, nested...)
	}

	return out, nil
}

func decodeMessage(data []byte) (Message, error) {
	r := bytes.NewReader(data)

	address, err := readPaddedString(r)
	if err != nil {
		return Message{}, fmt.Errorf("osc: bad address string: %w", err)
	}

	tags, err := readPaddedString(r)
	if err != nil {
		return Message{}, fmt.Errorf("osc: bad type-tag string: %w", err)
	}

	if len(tags) == 0 || tags[0] != ',' {
		return Message{}, fmt.Errorf("osc: type-tag string %q missing leading comma", tags)
	}

	args := make([]int32, 0, len(tags)-1)

	for _, tag := range tags[1:] {
		if tag != 'i' {
			return Message{}, fmt.Errorf("osc: unsupported type tag %q on %s", tag, address)
		}

		var v int32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return Message{}, fmt.Errorf("osc: reading int32 arg for %s: %w", address, err)
		}

		args = append(args, v)
	}

	return Message{Address: address, Args: args}, nil
}

func typeTagString(numArgs int) string {
	tags := make([]byte, numArgs+1)
	tags[0] = ','

	for i := 0; i < numArgs; i++ {
		tags[i+1] = 'i'
	}

	return string(tags)
}

// writePaddedString writes s null-terminated and zero-padded to a
// 4-byte boundary, per OSC 1.0 string encoding.
func writePaddedString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)

	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
}

// readPaddedString reads a null-terminated, 4-byte-padded string.
func readPaddedString(r *bytes.Reader) (string, error) {
	var raw []byte

	for {
		b, err := r.ReadByte()
		if err != nil {
			return "", err
		}

		if b == 0 {
			break
		}

		raw = append(raw, b)
	}

	// Consume padding up to the next 4-byte boundary. One null
	// terminator was already read; total consumed so far is
	// len(raw)+1 bytes from this string's start.
	consumed := len(raw) + 1
	for consumed%4 != 0 {
		if _, err := r.ReadByte(); err != nil {
			return "", err
		}

		consumed++
	}

	return string(raw), nil
}
