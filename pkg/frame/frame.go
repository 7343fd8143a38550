package frame

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Opcode is the 4-bit frame type. Only OpText is acted on; the rest are
// carried through to the caller unchanged.
type Opcode uint8

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(%#x)", uint8(o))
	}
}

// Header bits.
const (
	finBit     byte = 0x80
	rsv1Bit    byte = 0x40
	rsv2Bit    byte = 0x20
	rsv3Bit    byte = 0x10
	opcodeMask byte = 0x0F
	maskBit    byte = 0x80
	lenMask    byte = 0x7F

	len16Marker = 126
	len64Marker = 127

	// MaxHeaderLen is 2 fixed bytes, an 8-byte extended length and a mask key.
	MaxHeaderLen = 2 + 8 + 4
)

var (
	ErrStreamTruncated   = errors.New("frame: stream truncated")
	ErrProtocolViolation = errors.New("frame: protocol violation")
	ErrEncodingViolation = errors.New("frame: message is not valid utf-8")
	ErrMessageTooLarge   = errors.New("frame: message too large")
)

// Frame is one wire unit. Payload is always held unmasked; Key is applied
// on encode when Masked is set.
type Frame struct {
	Fin    bool
	Rsv    uint8 // rsv1..rsv3 in the low three bits
	Opcode Opcode
	Masked bool
	Key    [4]byte

	Payload []byte
}

// NewText returns a final, unmasked text frame, the only kind the server sends.
func NewText(payload []byte) *Frame {
	return &Frame{
		Fin:     true,
		Opcode:  OpText,
		Payload: payload,
	}
}

// Message is one reassembled application message.
type Message struct {
	// Opcode of the first frame; continuation frames do not change it.
	Opcode  Opcode
	Payload []byte
	// Frames is how many wire frames carried the message.
	Frames int
}

// Text returns the payload as a string, failing with ErrEncodingViolation
// if it is not valid UTF-8.
func (m *Message) Text() (string, error) {
	if !utf8.Valid(m.Payload) {
		return "", ErrEncodingViolation
	}
	return string(m.Payload), nil
}
