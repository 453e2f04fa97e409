package engine

import (
	"context"
	"errors"
	"time"
)

// ErrUnknownCommand is returned by an instance asked to run a command it does
// not implement.
var ErrUnknownCommand = errors.New("unknown command")

// ErrUnknownKind is returned when no engine is configured for a kind.
var ErrUnknownKind = errors.New("unknown engine kind")

const gracefulCloseTimeout = 5 * time.Second

// Instance is one live automation session owned by the daemon.
type Instance interface {
	// Execute runs an engine command and returns a JSON-encodable result.
	Execute(ctx context.Context, command string, args []string) (any, error)
	// Alive reports whether the underlying process still responds.
	Alive(ctx context.Context) bool
	// Close shuts the instance down. A graceful attempt is bounded; force
	// skips it.
	Close(ctx context.Context, force bool) error
}

// Starter creates instances of a configured kind.
type Starter interface {
	Start(ctx context.Context, kind string, options map[string]string) (Instance, error)
}

// closeWithin runs graceful until it returns or the timeout elapses, then runs
// kill unconditionally. kill must be idempotent.
func closeWithin(ctx context.Context, timeout time.Duration, force bool, graceful func() error, kill func()) error {
	defer kill()
	if force {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- graceful()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.New("graceful shutdown timed out, process killed")
	case <-ctx.Done():
		return ctx.Err()
	}
}
