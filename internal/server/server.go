package server

import (
	"context"
	"io"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pires/go-proxyproto"
	"github.com/pkg/errors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// MaxMessageSize bounds one reassembled message; 0 disables the bound.
	MaxMessageSize int64
	// MaxConnections caps concurrently accepted connections; 0 is unlimited.
	MaxConnections int
	// AcceptRate is new sessions per second per remote host; 0 disables it.
	AcceptRate  float64
	AcceptBurst int
	// IdleTimeout, when set, closes a session that sends nothing for that long.
	IdleTimeout time.Duration
	// ProxyProtocol takes the client address from a PROXY v1/v2 header.
	ProxyProtocol bool

	Responder Responder
	Logger    *log.Logger
}

type Server struct {
	opts    Options
	limiter *acceptLimiter
	stats   Stats

	mu       sync.Mutex
	closed   bool
	sessions map[uuid.UUID]net.Conn

	wg sync.WaitGroup
}

func New(opts Options) (*Server, error) {
	if opts.MaxMessageSize < 0 || opts.MaxConnections < 0 || opts.AcceptRate < 0 || opts.IdleTimeout < 0 {
		return nil, errors.New("server: negative option")
	}
	if opts.Responder == nil {
		opts.Responder = DefaultEcho()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "wsecho ", log.LstdFlags)
	}
	return &Server{
		opts:     opts,
		limiter:  newAcceptLimiter(opts.AcceptRate, opts.AcceptBurst),
		sessions: make(map[uuid.UUID]net.Conn),
	}, nil
}

// Serve accepts connections on ln, one goroutine per connection, until ctx
// is cancelled or Accept fails. Before returning it closes ln and every
// live session and waits for their goroutines. Cancellation yields nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ln = s.wrapListener(ln)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = ln.Close()
		s.closeSessions()
		return nil
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					s.opts.Logger.Printf("accept: %v", err)
					continue
				}
				return errors.Wrap(err, "server: accept")
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.handle(conn)
			}()
		}
	})

	err := g.Wait()
	s.wg.Wait()
	return err
}

func (s *Server) wrapListener(ln net.Listener) net.Listener {
	if s.opts.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	if s.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.opts.MaxConnections)
	}
	return ln
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	sess := NewSession(conn, SessionConfig{
		MaxMessageSize: s.opts.MaxMessageSize,
		IdleTimeout:    s.opts.IdleTimeout,
		Responder:      s.opts.Responder,
		Logger:         s.opts.Logger,
		Stats:          &s.stats,
	})
	// Registered before anything is read, so shutdown can close a
	// connection that is still sending its PROXY header.
	if !s.registerSession(sess.ID, conn) {
		return
	}
	defer s.unregisterSession(sess.ID)

	// With PROXY protocol enabled this reads the header, so it stays off
	// the accept loop.
	ra := conn.RemoteAddr()
	if !s.limiter.Allow(ra) {
		s.stats.reject()
		s.opts.Logger.Printf("rejecting %s: accept rate exceeded", ra)
		return
	}

	s.stats.open()
	defer s.stats.close()

	s.opts.Logger.Printf("session %s: client connected from %s", sess.ID, ra)
	err := sess.Run()
	switch {
	case err == nil:
		s.opts.Logger.Printf("session %s: closed by client request", sess.ID)
	case errors.Is(err, io.EOF):
		s.opts.Logger.Printf("session %s: client disconnected", sess.ID)
	default:
		s.opts.Logger.Printf("session %s: %v", sess.ID, err)
	}
}

// Stats returns a snapshot of the server-wide counters.
func (s *Server) Stats() Snapshot { return s.stats.Snapshot() }

// ActiveSessions reports how many sessions are currently registered.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) registerSession(id uuid.UUID, conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[id] = conn
	return true
}

func (s *Server) unregisterSession(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, conn := range s.sessions {
		_ = conn.Close()
	}
}
