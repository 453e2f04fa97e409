package ipc

import (
	"strings"
)

// Request is one line sent from a client to the daemon.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args"`
	// Token authenticates clients on transports without peer credentials.
	Token string `json:"token,omitempty"`
}

// Reserved command names. Matching is case-insensitive.
const (
	CommandPing     = "ping"
	CommandList     = "list"
	CommandStop     = "stop"
	CommandStopWire = "__stop__"
)

// MaxRequestBytes bounds a single request line.
const MaxRequestBytes = 1 << 20

// NormalizeCommand folds a command name for table lookup.
func NormalizeCommand(command string) string {
	return strings.ToLower(strings.TrimSpace(command))
}

// IsStop reports whether command asks the daemon to shut down.
func IsStop(command string) bool {
	switch NormalizeCommand(command) {
	case CommandStop, CommandStopWire:
		return true
	default:
		return false
	}
}

// IsLiveness reports whether command is a cheap liveness probe.
func IsLiveness(command string) bool {
	switch NormalizeCommand(command) {
	case CommandPing, CommandList:
		return true
	default:
		return false
	}
}
