package transport

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// TCPDialer dials TCP endpoints with timeouts.
type TCPDialer struct {
	Timeout time.Duration
}

func (d TCPDialer) Dial(addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), "tcp", addr)
}

// DialContext matches the NetDialContext hook of websocket dialers.
func (d TCPDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if d.Timeout == 0 {
		d.Timeout = 10 * time.Second
	}
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: dial %s", addr)
	}
	return conn, nil
}

// ListenOptions are socket options applied before bind.
type ListenOptions struct {
	// ReusePort sets SO_REUSEPORT so several server processes can share
	// one address.
	ReusePort bool
}

// TCPListener wraps net.Listener.
type TCPListener struct {
	net.Listener
}

func ListenTCP(ctx context.Context, addr string, opts ListenOptions) (*TCPListener, error) {
	lc := net.ListenConfig{Control: control(opts)}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "transport: listen %s", addr)
	}
	return &TCPListener{Listener: ln}, nil
}
