//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package transport

import (
	"syscall"

	"github.com/pkg/errors"
)

func control(opts ListenOptions) func(network, address string, c syscall.RawConn) error {
	if !opts.ReusePort {
		return nil
	}
	return func(string, string, syscall.RawConn) error {
		return errors.New("transport: SO_REUSEPORT is not supported on this platform")
	}
}
