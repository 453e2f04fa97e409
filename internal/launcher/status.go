package launcher

import (
	"context"
	"errors"
	"time"

	"github.com/whuanle/easytouch/internal/ipc"
)

// DaemonStatus is what a client can tell about the daemon without starting it.
type DaemonStatus struct {
	Running   bool      `json:"running"`
	Stale     bool      `json:"stale,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Network   string    `json:"network,omitempty"`
	Address   string    `json:"address,omitempty"`
	Version   string    `json:"version,omitempty"`
	StartedAt time.Time `json:"startedAt,omitzero"`
	Error     string    `json:"error,omitempty"`
}

// Status reads the descriptor and pings the daemon it advertises. It never
// spawns a daemon.
func (l *Launcher) Status(ctx context.Context) DaemonStatus {
	desc, err := ipc.ReadDescriptor(l.descriptorPath)
	if errors.Is(err, ipc.ErrNoDescriptor) {
		return DaemonStatus{}
	}
	if err != nil {
		return DaemonStatus{Stale: true, Error: err.Error()}
	}

	st := DaemonStatus{
		PID:       desc.PID,
		Network:   desc.Network,
		Address:   desc.Address,
		Version:   desc.Version,
		StartedAt: desc.StartedAt,
	}
	if err := l.ping(ctx); err != nil && !errors.Is(err, ipc.ErrBroken) {
		st.Stale = true
		st.Error = err.Error()
		return st
	}
	st.Running = true
	return st
}
