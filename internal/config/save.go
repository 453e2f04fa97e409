package config

import (
	"bytes"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/whuanle/easytouch/internal/paths"
)

// Starter returns the config written by `easytouch config init`: the built-in
// chromium engine spelled out, plus platform transport defaults.
func Starter() *Config {
	headless := true
	return &Config{
		Daemon: DaemonConfig{
			Transport:      DefaultTransport(),
			ConnectTimeout: defaultConnectTimeout.String(),
			PollInterval:   defaultPollInterval.String(),
			PollAttempts:   defaultPollAttempts,
		},
		Log: LogConfig{Level: "info"},
		Engines: map[string]EngineConfig{
			EngineChromium: {Type: EngineChromium, Headless: &headless},
		},
	}
}

// Save writes the config to the default config path atomically.
func Save(cfg *Config) error {
	return SaveTo(paths.ConfigFile(), cfg)
}

// SaveTo writes cfg to path atomically.
func SaveTo(path string, cfg *Config) error {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := Validate(cfg); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	var payload bytes.Buffer
	if err := toml.NewEncoder(&payload).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := paths.WriteFileAtomic(path, payload.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
