package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/cryptobyte"
)

// payloadChunk is the largest payload allocated up front from the declared
// length alone.
const payloadChunk = 64 << 10

// Decoder reads frames from a stream and reassembles them into messages.
// A Decoder is not safe for concurrent use; each session owns its own.
type Decoder struct {
	r   io.Reader
	max int64
	hdr [MaxHeaderLen]byte
}

// NewDecoder returns a Decoder reading from r. maxMessageSize bounds the
// accumulated payload of one message; 0 means unbounded.
func NewDecoder(r io.Reader, maxMessageSize int64) *Decoder {
	if maxMessageSize < 0 {
		maxMessageSize = 0
	}
	return &Decoder{r: r, max: maxMessageSize}
}

// ReadFrame reads a single frame. A clean EOF before the first header byte
// is returned as io.EOF; any other short read is ErrStreamTruncated.
func (d *Decoder) ReadFrame() (*Frame, error) {
	return d.readFrame(0, true)
}

// ReadMessage reads frames until one with fin set and returns the
// concatenated, unmasked payload. io.EOF is only returned when the stream
// ends exactly on a message boundary.
func (d *Decoder) ReadMessage() (*Message, error) {
	var msg Message
	for {
		f, err := d.readFrame(int64(len(msg.Payload)), msg.Frames == 0)
		if err != nil {
			return nil, err
		}
		if msg.Frames == 0 {
			msg.Opcode = f.Opcode
			msg.Payload = f.Payload
		} else {
			msg.Payload = append(msg.Payload, f.Payload...)
		}
		msg.Frames++
		if f.Fin {
			return &msg, nil
		}
	}
}

func (d *Decoder) readFrame(buffered int64, boundary bool) (*Frame, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:2]); err != nil {
		if boundary && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, truncated("header", err)
	}

	var b0, b1 uint8
	s := cryptobyte.String(d.hdr[:2])
	s.ReadUint8(&b0)
	s.ReadUint8(&b1)

	f := &Frame{
		Fin:    b0&finBit != 0,
		Rsv:    (b0 & (rsv1Bit | rsv2Bit | rsv3Bit)) >> 4,
		Opcode: Opcode(b0 & opcodeMask),
		Masked: b1&maskBit != 0,
	}

	length, err := d.readLength(b1 & lenMask)
	if err != nil {
		return nil, err
	}
	if length > uint64(math.MaxInt) {
		return nil, fmt.Errorf("%w: frame of %d bytes", ErrMessageTooLarge, length)
	}
	if d.max > 0 && uint64(buffered)+length > uint64(d.max) {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, uint64(buffered)+length, d.max)
	}

	if f.Masked {
		if _, err := io.ReadFull(d.r, f.Key[:]); err != nil {
			return nil, truncated("masking key", err)
		}
	}

	payload, err := d.readPayload(int64(length))
	if err != nil {
		return nil, err
	}
	f.Payload = payload
	if f.Masked {
		Mask(f.Payload, f.Key)
	}
	return f, nil
}

// readPayload reads exactly n bytes. Small payloads are read straight into
// a buffer of the declared size; larger ones grow with the data actually
// received, so a header alone cannot force a large allocation.
func (d *Decoder) readPayload(n int64) ([]byte, error) {
	if n <= payloadChunk {
		p := make([]byte, n)
		if _, err := io.ReadFull(d.r, p); err != nil {
			return nil, truncated("payload", err)
		}
		return p, nil
	}
	var buf bytes.Buffer
	got, err := io.CopyN(&buf, d.r, n)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, truncated(fmt.Sprintf("payload (%d of %d bytes)", got, n), err)
	}
	return buf.Bytes(), nil
}

// readLength resolves the 7-bit length, reading the 16- or 64-bit
// extension when the marker asks for it.
func (d *Decoder) readLength(l7 byte) (uint64, error) {
	switch {
	case l7 < len16Marker:
		return uint64(l7), nil
	case l7 == len16Marker:
		ext := d.hdr[2:4]
		if _, err := io.ReadFull(d.r, ext); err != nil {
			return 0, truncated("extended length", err)
		}
		var v uint16
		s := cryptobyte.String(ext)
		s.ReadUint16(&v)
		return uint64(v), nil
	case l7 == len64Marker:
		ext := d.hdr[2:10]
		if _, err := io.ReadFull(d.r, ext); err != nil {
			return 0, truncated("extended length", err)
		}
		var v uint64
		s := cryptobyte.String(ext)
		s.ReadUint64(&v)
		if v>>63 != 0 {
			return 0, fmt.Errorf("%w: 64-bit length has its most significant bit set", ErrProtocolViolation)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("%w: length field %d", ErrProtocolViolation, l7)
	}
}

func truncated(stage string, err error) error {
	return fmt.Errorf("%w: reading %s: %w", ErrStreamTruncated, stage, err)
}
