package config

import (
	"runtime"
	"time"
)

// Engine types understood by the daemon.
const (
	EngineChromium = "chromium"
	EngineMCP      = "mcp"
)

// Transports the daemon can listen on.
const (
	TransportUnix = "unix"
	TransportPipe = "pipe"
	TransportTCP  = "tcp"
)

const (
	defaultConnectTimeout = 500 * time.Millisecond
	defaultPollInterval   = 150 * time.Millisecond
	defaultPollAttempts   = 20
)

// Config is the top-level easytouch configuration.
type Config struct {
	Daemon  DaemonConfig            `toml:"daemon"`
	Log     LogConfig               `toml:"log"`
	Engines map[string]EngineConfig `toml:"engines"`
}

// DaemonConfig controls how clients reach the daemon and how long it lives.
type DaemonConfig struct {
	Transport           string `toml:"transport,omitempty"`
	ConnectTimeout      string `toml:"connect_timeout,omitempty"`
	PollInterval        string `toml:"poll_interval,omitempty"`
	PollAttempts        int    `toml:"poll_attempts,omitempty"`
	IdleTimeout         string `toml:"idle_timeout,omitempty"`
	InstanceIdleTimeout string `toml:"instance_idle_timeout,omitempty"`
}

// LogConfig controls the daemon log file.
type LogConfig struct {
	Level      string `toml:"level,omitempty"`
	File       string `toml:"file,omitempty"`
	MaxSizeMB  int    `toml:"max_size_mb,omitempty"`
	MaxBackups int    `toml:"max_backups,omitempty"`
	MaxAgeDays int    `toml:"max_age_days,omitempty"`
	Compress   bool   `toml:"compress,omitempty"`
}

// EngineConfig describes how to start one kind of automation session.
type EngineConfig struct {
	Type string `toml:"type"`

	// chromium
	ExecPath  string   `toml:"exec_path,omitempty"`
	Headless  *bool    `toml:"headless,omitempty"`
	UserAgent string   `toml:"user_agent,omitempty"`
	Flags     []string `toml:"flags,omitempty"`

	// mcp, stdio transport
	Command string            `toml:"command,omitempty"`
	Args    []string          `toml:"args,omitempty"`
	Env     map[string]string `toml:"env,omitempty"`

	// mcp, HTTP transport
	URL     string            `toml:"url,omitempty"`
	Headers map[string]string `toml:"headers,omitempty"`
}

// IsStdio returns true if an mcp engine is started as a subprocess.
func (e EngineConfig) IsStdio() bool {
	return e.Command != ""
}

// IsHTTP returns true if an mcp engine is reached over streamable HTTP.
func (e EngineConfig) IsHTTP() bool {
	return e.URL != ""
}

// IsHeadless reports the effective headless setting (default true).
func (e EngineConfig) IsHeadless() bool {
	return e.Headless == nil || *e.Headless
}

// DefaultTransport is the transport used when none is configured.
func DefaultTransport() string {
	if runtime.GOOS == "windows" {
		return TransportPipe
	}
	return TransportUnix
}

// EffectiveTransport returns the configured transport or the platform default.
func (d DaemonConfig) EffectiveTransport() string {
	if d.Transport == "" {
		return DefaultTransport()
	}
	return d.Transport
}

// ConnectTimeoutOrDefault returns the client connect timeout.
func (d DaemonConfig) ConnectTimeoutOrDefault() time.Duration {
	return durationOr(d.ConnectTimeout, defaultConnectTimeout)
}

// PollIntervalOrDefault returns the delay between startup liveness probes.
func (d DaemonConfig) PollIntervalOrDefault() time.Duration {
	return durationOr(d.PollInterval, defaultPollInterval)
}

// PollAttemptsOrDefault returns the number of startup liveness probes.
func (d DaemonConfig) PollAttemptsOrDefault() int {
	if d.PollAttempts <= 0 {
		return defaultPollAttempts
	}
	return d.PollAttempts
}

// IdleTimeoutOrZero returns how long an empty daemon waits before stopping itself.
// Zero disables self-stop.
func (d DaemonConfig) IdleTimeoutOrZero() time.Duration {
	return durationOr(d.IdleTimeout, 0)
}

// InstanceIdleTimeoutOrZero returns how long an untouched instance lives.
// Zero keeps instances until closed.
func (d DaemonConfig) InstanceIdleTimeoutOrZero() time.Duration {
	return durationOr(d.InstanceIdleTimeout, 0)
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
