// Package launcher runs inside short-lived client processes. It forwards
// commands to the daemon and starts the daemon on demand.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/whuanle/easytouch/internal/bootstrap"
	"github.com/whuanle/easytouch/internal/config"
	"github.com/whuanle/easytouch/internal/envelope"
	"github.com/whuanle/easytouch/internal/ipc"
	"github.com/whuanle/easytouch/internal/paths"
)

// ErrStartTimeout is returned when a spawned daemon never answered a ping
// within the poll budget.
var ErrStartTimeout = errors.New("timed out waiting for daemon")

// ErrExecutableNotFound is returned when the running binary cannot be located
// to spawn the daemon from.
var ErrExecutableNotFound = bootstrap.ErrExecutableNotFound

// DaemonArg is the hidden argv[1] that switches the binary into daemon mode.
const DaemonArg = "__daemon"

var (
	resolveExecutableFn = bootstrap.Executable
	spawnDaemonFn       = spawnDaemon
	acquireSpawnLockFn  = acquireSpawnLock
	execCommandFn       = exec.Command
)

// Commands that never reach the daemon.
var localCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"config":     true,
	"completion": true,
}

// ShouldProxy reports whether command must be executed by the daemon.
func ShouldProxy(command string) bool {
	name := ipc.NormalizeCommand(command)
	return name != "" && !localCommands[name]
}

// Launcher forwards requests to the daemon advertised by the descriptor file.
type Launcher struct {
	descriptorPath string
	lockPath       string
	connectTimeout time.Duration
	pollInterval   time.Duration
	pollAttempts   int

	// send delivers one request; replaced in tests.
	send func(ctx context.Context, req *ipc.Request) (envelope.Transport, error)
}

// New creates a launcher using the daemon settings in cfg.
func New(cfg *config.Config) *Launcher {
	if cfg == nil {
		cfg = &config.Config{}
	}
	l := &Launcher{
		descriptorPath: paths.DescriptorPath(),
		lockPath:       paths.LockPath(),
		connectTimeout: cfg.Daemon.ConnectTimeoutOrDefault(),
		pollInterval:   cfg.Daemon.PollIntervalOrDefault(),
		pollAttempts:   cfg.Daemon.PollAttemptsOrDefault(),
	}
	l.send = l.sendToDaemon
	return l
}

// Execute sends command to the daemon. When the daemon cannot be reached it
// is started and the command is retried exactly once. The result is always a
// Transport: a failed one means the daemon never ran the command.
func (l *Launcher) Execute(ctx context.Context, command string, args []string) envelope.Transport {
	if args == nil {
		args = []string{}
	}
	req := &ipc.Request{Command: command, Args: args}

	resp, err := l.send(ctx, req)
	if err == nil {
		return resp
	}
	if !errors.Is(err, ipc.ErrUnreachable) {
		// The request was delivered; the daemon may have run it.
		return envelope.TransportError(err)
	}
	if ipc.IsStop(command) {
		return envelope.Carry(envelope.OK(map[string]any{"stopping": false, "running": false}))
	}

	if startErr := l.EnsureStarted(ctx); startErr != nil {
		return envelope.TransportErrorf("could not start daemon: %v (first attempt: %v)", startErr, err)
	}

	resp, err = l.send(ctx, req)
	if err != nil {
		return envelope.TransportErrorf("daemon started but command still failed: %v", err)
	}
	return resp
}

// EnsureStarted makes sure a daemon answers on the advertised channel. Callers
// are serialized by a file lock, so concurrent clients start at most one
// daemon; a client that waited on the lock reuses the daemon another started.
func (l *Launcher) EnsureStarted(ctx context.Context) error {
	if err := paths.EnsureDir(filepath.Dir(l.lockPath)); err != nil {
		return fmt.Errorf("creating runtime dir: %w", err)
	}
	release, err := acquireSpawnLockFn(l.lockPath)
	if err != nil {
		return fmt.Errorf("acquiring daemon lock: %w", err)
	}
	defer release() //nolint:errcheck

	if l.listening(ctx) {
		return nil
	}

	exe, err := resolveExecutableFn()
	if err != nil {
		return err
	}
	exited, err := spawnDaemonFn(exe)
	if err != nil {
		return fmt.Errorf("spawning daemon: %w", err)
	}
	return l.waitReady(ctx, exited)
}

// listening reports whether something accepts on the advertised channel. A
// daemon that accepted the ping but is busy with another client counts.
func (l *Launcher) listening(ctx context.Context) bool {
	err := l.ping(ctx)
	return err == nil || errors.Is(err, ipc.ErrBroken)
}

func (l *Launcher) waitReady(ctx context.Context, exited <-chan error) error {
	timer := time.NewTimer(l.pollInterval)
	defer timer.Stop()

	for attempt := 0; attempt < l.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-exited:
			// A clean exit means another daemon already serves; keep polling.
			if err != nil {
				return fmt.Errorf("daemon exited during startup: %w (see %s)", err, paths.LogFile())
			}
			exited = nil
			<-timer.C
		case <-timer.C:
		}
		if l.ping(ctx) == nil {
			return nil
		}
		timer.Reset(l.pollInterval)
	}
	return fmt.Errorf("%w after %s", ErrStartTimeout, time.Duration(l.pollAttempts)*l.pollInterval)
}

func (l *Launcher) ping(ctx context.Context) error {
	desc, err := l.descriptor()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*l.connectTimeout)
	defer cancel()
	return ipc.NewClient(desc, l.connectTimeout).Ping(ctx)
}

func (l *Launcher) sendToDaemon(ctx context.Context, req *ipc.Request) (envelope.Transport, error) {
	desc, err := l.descriptor()
	if err != nil {
		return envelope.Transport{}, err
	}
	return ipc.NewClient(desc, l.connectTimeout).Send(ctx, req)
}

// descriptor reads the descriptor; a missing or unreadable one means no
// daemon can be reached.
func (l *Launcher) descriptor() (ipc.Descriptor, error) {
	desc, err := ipc.ReadDescriptor(l.descriptorPath)
	if err != nil {
		return ipc.Descriptor{}, fmt.Errorf("%w: %w", ipc.ErrUnreachable, err)
	}
	return desc, nil
}

// spawnDaemon starts exe in daemon mode, detached from this process with no
// inherited standard streams. The returned channel reports the child's exit.
func spawnDaemon(exe string) (<-chan error, error) {
	cmd, cleanup, err := newDaemonCommand(exe)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()
	return exited, nil
}

func newDaemonCommand(exe string) (*exec.Cmd, func(), error) {
	cmd := execCommandFn(exe, DaemonArg)
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	cmd.SysProcAttr = detachedProcAttr()
	return cmd, func() {
		_ = devNull.Close()
	}, nil
}
