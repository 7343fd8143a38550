package frame

import (
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
)

// EncodeFrame serialises f. The length field always takes the shortest of
// the three forms: 7-bit, 126 + uint16, or 127 + uint64.
func EncodeFrame(f *Frame) ([]byte, error) {
	if f.Opcode > Opcode(opcodeMask) {
		return nil, fmt.Errorf("%w: opcode %#x does not fit in 4 bits", ErrProtocolViolation, uint8(f.Opcode))
	}

	b := cryptobyte.NewBuilder(make([]byte, 0, MaxHeaderLen+len(f.Payload)))

	// 1) fin, rsv1..3, opcode
	b0 := byte(f.Opcode)
	if f.Fin {
		b0 |= finBit
	}
	b0 |= (f.Rsv & 0x7) << 4
	b.AddUint8(b0)

	// 2) mask bit and length
	var b1 byte
	if f.Masked {
		b1 = maskBit
	}
	n := len(f.Payload)
	switch {
	case n < len16Marker:
		b.AddUint8(b1 | byte(n))
	case n <= 0xFFFF:
		b.AddUint8(b1 | len16Marker)
		b.AddUint16(uint16(n))
	default:
		b.AddUint8(b1 | len64Marker)
		b.AddUint64(uint64(n))
	}

	// 3) masking key and payload
	if !f.Masked {
		b.AddBytes(f.Payload)
		return b.Bytes()
	}
	b.AddBytes(f.Key[:])
	out, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	start := len(out)
	out = append(out, f.Payload...)
	Mask(out[start:], f.Key)
	return out, nil
}

// Encode writes the encoded frame to w in a single Write call.
func Encode(w io.Writer, f *Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteText sends msg as one final, unmasked text frame. Messages are never
// fragmented on output.
func WriteText(w io.Writer, msg []byte) error {
	return Encode(w, NewText(msg))
}
