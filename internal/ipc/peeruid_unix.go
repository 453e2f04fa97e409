//go:build linux || darwin

package ipc

import (
	"fmt"
	"net"
	"os"
)

// peerUIDMatchesCurrentUser reports whether the process on the other end of a
// unix socket runs as the same user as the daemon.
func peerUIDMatchesCurrentUser(conn net.Conn) (bool, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return false, fmt.Errorf("connection is not unix")
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return false, err
	}

	var uid uint32
	var probeErr error
	if err := raw.Control(func(fd uintptr) {
		uid, probeErr = socketPeerUID(int(fd))
	}); err != nil {
		return false, err
	}
	if probeErr != nil {
		return false, probeErr
	}
	return uid == uint32(os.Getuid()), nil
}
