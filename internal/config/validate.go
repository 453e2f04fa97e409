package config

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/whuanle/easytouch/internal/httpheaders"
)

// Validate checks configuration invariants and returns actionable errors.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var errs []error
	errs = append(errs, validateDaemon(cfg.Daemon)...)
	errs = append(errs, validateLog(cfg.Log)...)

	names := make([]string, 0, len(cfg.Engines))
	for name := range cfg.Engines {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		errs = append(errs, validateEngine(name, cfg.Engines[name])...)
	}

	return errors.Join(errs...)
}

func validateDaemon(d DaemonConfig) []error {
	var errs []error

	switch d.Transport {
	case "", TransportUnix, TransportPipe, TransportTCP:
	default:
		errs = append(errs, fmt.Errorf("daemon.transport: unknown transport %q (want unix, pipe or tcp)", d.Transport))
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"connect_timeout", d.ConnectTimeout},
		{"poll_interval", d.PollInterval},
		{"idle_timeout", d.IdleTimeout},
		{"instance_idle_timeout", d.InstanceIdleTimeout},
	} {
		if field.value == "" {
			continue
		}
		dur, err := time.ParseDuration(field.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("daemon.%s: invalid duration %q: %w", field.name, field.value, err))
		} else if dur <= 0 {
			errs = append(errs, fmt.Errorf("daemon.%s: must be > 0, got %q", field.name, field.value))
		}
	}

	if d.PollAttempts < 0 {
		errs = append(errs, fmt.Errorf("daemon.poll_attempts: must be >= 0, got %d", d.PollAttempts))
	}
	return errs
}

func validateLog(l LogConfig) []error {
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return []error{fmt.Errorf("log.level: unknown level %q", l.Level)}
	}
}

func validateEngine(name string, ec EngineConfig) []error {
	var errs []error

	switch ec.Type {
	case "", EngineChromium:
		if ec.Command != "" || ec.URL != "" {
			errs = append(errs, fmt.Errorf("engines.%s: command and url only apply to type %q", name, EngineMCP))
		}
	case EngineMCP:
		hasCommand := strings.TrimSpace(ec.Command) != ""
		hasURL := strings.TrimSpace(ec.URL) != ""

		switch {
		case hasCommand && hasURL:
			errs = append(errs, fmt.Errorf("engines.%s: configure either command (stdio) or url (http), not both", name))
		case !hasCommand && !hasURL:
			errs = append(errs, fmt.Errorf("engines.%s: missing transport, set command (stdio) or url (http)", name))
		}

		if hasURL {
			if _, err := url.ParseRequestURI(ec.URL); err != nil {
				errs = append(errs, fmt.Errorf("engines.%s.url: invalid URL %q: %w", name, ec.URL, err))
			}
		}
		if dup, ok := httpheaders.FirstDuplicate(ec.Headers); ok {
			errs = append(errs, fmt.Errorf("engines.%s.headers: %q set more than once with different casing", name, dup))
		}
	default:
		errs = append(errs, fmt.Errorf("engines.%s.type: unknown engine type %q (want %s or %s)", name, ec.Type, EngineChromium, EngineMCP))
	}

	return errs
}
