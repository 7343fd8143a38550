package server

import (
	"bufio"
	"io"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"wsecho/pkg/frame"
	"wsecho/pkg/handshake"
)

// FSM (session): AwaitingHandshake -> Established -> Closed.
// Closed is terminal and is entered on the sentinel, on any error, or when
// the handshake fails.

type State int32

const (
	StateAwaitingHandshake State = iota
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionConfig is what a Session needs from its server.
type SessionConfig struct {
	MaxMessageSize int64
	IdleTimeout    time.Duration
	Responder      Responder
	Logger         *log.Logger
	Stats          *Stats
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}

// Session drives one connection: a single handshake, then strictly
// alternating decode and encode turns. It exclusively owns rw until Run
// returns; releasing the transport is left to the caller.
type Session struct {
	ID uuid.UUID

	rw    io.ReadWriter
	br    *bufio.Reader
	dec   *frame.Decoder
	cfg   SessionConfig
	state atomic.Int32
}

func NewSession(rw io.ReadWriter, cfg SessionConfig) *Session {
	if cfg.Responder == nil {
		cfg.Responder = DefaultEcho()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	br := bufio.NewReader(rw)
	return &Session{
		ID:  uuid.New(),
		rw:  rw,
		br:  br,
		dec: frame.NewDecoder(br, cfg.MaxMessageSize),
		cfg: cfg,
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

// Run performs the handshake and serves messages until the responder
// signals closing (nil is returned) or an error ends the session. A peer
// that disconnects cleanly between messages yields io.EOF.
func (s *Session) Run() error {
	defer s.state.Store(int32(StateClosed))

	if err := s.handshake(); err != nil {
		return err
	}
	s.state.Store(int32(StateEstablished))

	for {
		if err := s.armDeadline(); err != nil {
			return err
		}
		msg, err := s.dec.ReadMessage()
		if err != nil {
			return err
		}
		text, err := msg.Text()
		if err != nil {
			return err
		}
		s.cfg.Stats.addIn(len(msg.Payload))
		s.cfg.Logger.Printf("session %s: received message: %q", s.ID, text)

		reply, closing := s.cfg.Responder.Respond(text)
		if err := frame.WriteText(s.rw, []byte(reply)); err != nil {
			return errors.Wrap(err, "session: write reply")
		}
		s.cfg.Stats.addOut(len(reply))
		if closing {
			return nil
		}
	}
}

func (s *Session) handshake() error {
	if err := s.armDeadline(); err != nil {
		return err
	}
	lines, err := handshake.ReadLines(s.br)
	if err != nil {
		return errors.Wrap(err, "session: read handshake")
	}
	resp, err := handshake.Respond(lines)
	if err != nil {
		return err
	}
	if _, err := s.rw.Write(resp); err != nil {
		return errors.Wrap(err, "session: write handshake")
	}
	return nil
}

// armDeadline pushes the read deadline out by IdleTimeout, when one is
// configured and the transport supports deadlines.
func (s *Session) armDeadline() error {
	if s.cfg.IdleTimeout <= 0 {
		return nil
	}
	d, ok := s.rw.(readDeadliner)
	if !ok {
		return nil
	}
	return errors.Wrap(d.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)), "session: set read deadline")
}
