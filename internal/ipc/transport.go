package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Network names recorded in the descriptor.
const (
	NetworkUnix = "unix"
	NetworkTCP  = "tcp"
	NetworkPipe = "pipe"
)

// ErrUnreachable marks failures to connect to or send to the daemon. The
// launcher treats it as the signal to start a daemon.
var ErrUnreachable = errors.New("daemon unreachable")

// ErrBroken marks failures after a request was delivered; the daemon may
// have run the command, so it is never retried.
var ErrBroken = errors.New("daemon connection broken")

// ErrStopping is the transport error a shutting-down daemon sends for
// requests it accepted but never read.
var ErrStopping = errors.New("daemon stopping")

var (
	listenPipeFn = listenPipe
	dialPipeFn   = dialPipe
)

// listen binds the channel for network. For unix sockets any stale socket
// file is removed first and the socket is restricted to the owner. For tcp
// the address is ignored in favour of an ephemeral loopback port.
func listen(network, address string) (net.Listener, string, error) {
	switch network {
	case NetworkUnix:
		_ = os.Remove(address)
		ln, err := net.Listen("unix", address)
		if err != nil {
			return nil, "", fmt.Errorf("listening on %s: %w", address, err)
		}
		if err := os.Chmod(address, 0600); err != nil {
			ln.Close()
			os.Remove(address)
			return nil, "", fmt.Errorf("setting socket permissions: %w", err)
		}
		return ln, address, nil
	case NetworkTCP:
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, "", fmt.Errorf("listening on loopback: %w", err)
		}
		return ln, ln.Addr().String(), nil
	case NetworkPipe:
		ln, err := listenPipeFn(address)
		if err != nil {
			return nil, "", fmt.Errorf("listening on %s: %w", address, err)
		}
		return ln, address, nil
	default:
		return nil, "", fmt.Errorf("unsupported network %q", network)
	}
}

// dial connects to the daemon channel within timeout.
func dial(ctx context.Context, network, address string, timeout time.Duration) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch network {
	case NetworkUnix, NetworkTCP:
		var d net.Dialer
		return d.DialContext(ctx, network, address)
	case NetworkPipe:
		return dialPipeFn(ctx, address)
	default:
		return nil, fmt.Errorf("unsupported network %q", network)
	}
}
