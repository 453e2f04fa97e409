//go:build !linux && !darwin

package ipc

import "net"

// Platforms without peer credentials rely on the channel's own access control
// (named pipe security descriptor) or on the descriptor token.
func peerUIDMatchesCurrentUser(net.Conn) (bool, error) {
	return true, nil
}
