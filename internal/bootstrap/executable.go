package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrExecutableNotFound is returned when the running binary cannot be located
// on disk, which makes spawning a daemon impossible.
var ErrExecutableNotFound = errors.New("could not resolve executable")

var osExecutable = os.Executable

// Executable returns the absolute, symlink-resolved path of the running binary.
func Executable() (string, error) {
	exe, err := osExecutable()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExecutableNotFound, err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	if _, err := os.Stat(exe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExecutableNotFound, err)
	}
	return exe, nil
}
