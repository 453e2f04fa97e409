package paths

import (
	"os"
	"os/user"
	"path/filepath"
	"regexp"

	"github.com/mitchellh/go-homedir"
)

const appName = "easytouch"

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, err := homedir.Dir()
	if err != nil {
		return os.TempDir()
	}
	return h
}

func xdgDir(envVar, fallbackSuffix string) string {
	if v := os.Getenv(envVar); v != "" {
		return filepath.Join(v, appName)
	}
	return filepath.Join(homeDir(), fallbackSuffix, appName)
}

// ConfigDir returns the easytouch config directory ($XDG_CONFIG_HOME/easytouch).
func ConfigDir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the easytouch state directory ($XDG_STATE_HOME/easytouch).
func StateDir() string {
	return xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// RuntimeDir returns the easytouch runtime directory for the socket, descriptor and lock.
// Falls back to $XDG_STATE_HOME/easytouch if XDG_RUNTIME_DIR is unset.
func RuntimeDir() string {
	if v := os.Getenv("XDG_RUNTIME_DIR"); v != "" {
		return filepath.Join(v, appName)
	}
	return StateDir()
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// SocketPath returns the path to the daemon Unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "daemon.sock")
}

// DescriptorPath returns the path to the daemon descriptor file.
func DescriptorPath() string {
	return filepath.Join(RuntimeDir(), "daemon.json")
}

// LockPath returns the path to the spawn lock.
func LockPath() string {
	return filepath.Join(RuntimeDir(), "daemon.lock")
}

// LogFile returns the default daemon log file.
func LogFile() string {
	return filepath.Join(StateDir(), "daemon.log")
}

var pipeUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// PipeName returns the per-user Windows named pipe the daemon listens on.
func PipeName() string {
	name := "default"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = pipeUnsafe.ReplaceAllString(u.Username, "_")
	}
	return `\\.\pipe\` + appName + "-" + name
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
