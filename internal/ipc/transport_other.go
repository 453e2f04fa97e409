//go:build !windows

package ipc

import (
	"context"
	"errors"
	"net"
)

var errPipeUnsupported = errors.New("named pipes are only available on windows")

func listenPipe(string) (net.Listener, error) {
	return nil, errPipeUnsupported
}

func dialPipe(context.Context, string) (net.Conn, error) {
	return nil, errPipeUnsupported
}
