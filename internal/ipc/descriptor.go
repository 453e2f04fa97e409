package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/whuanle/easytouch/internal/paths"
)

// Descriptor advertises how to reach a running daemon. Only the daemon writes
// or removes it; clients only read it. A descriptor with nothing listening
// behind it is stale, which is detected by a failed ping, never by age.
type Descriptor struct {
	PID       int       `json:"pid"`
	Network   string    `json:"network"`
	Address   string    `json:"address"`
	Token     string    `json:"token,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version,omitempty"`
}

// ErrNoDescriptor is returned when no descriptor file exists.
var ErrNoDescriptor = errors.New("no daemon descriptor")

// ReadDescriptor loads the descriptor at path.
func ReadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Descriptor{}, ErrNoDescriptor
		}
		return Descriptor{}, fmt.Errorf("reading descriptor: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parsing descriptor %s: %w", path, err)
	}
	if d.Network == "" || d.Address == "" {
		return Descriptor{}, fmt.Errorf("descriptor %s: missing channel", path)
	}
	return d, nil
}

// WriteDescriptor atomically replaces the descriptor at path.
func WriteDescriptor(path string, d Descriptor) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding descriptor: %w", err)
	}
	data = append(data, '\n')

	if err := paths.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing descriptor: %w", err)
	}
	return nil
}

// RemoveDescriptor deletes the descriptor at path if it is owner's, matched
// by pid and token. A descriptor belonging to a different daemon, including
// one in the same process, is left alone.
func RemoveDescriptor(path string, owner Descriptor) error {
	d, err := ReadDescriptor(path)
	if errors.Is(err, ErrNoDescriptor) {
		return nil
	}
	if err == nil && (d.PID != owner.PID || d.Token != owner.Token) {
		return nil
	}
	if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
		return fmt.Errorf("removing descriptor: %w", rmErr)
	}
	return nil
}
