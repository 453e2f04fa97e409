package config

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/whuanle/easytouch/internal/paths"
)

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns an empty Config (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadForEdit reads the config file for in-place edits.
// Unlike Load, it preserves raw ${ENV_VAR} placeholders.
func LoadForEdit() (*Config, error) {
	return LoadForEditFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	return loadFrom(path, true)
}

// LoadForEditFrom reads and parses a config file at the given path for edits.
// It intentionally skips env expansion so writes do not bake secrets.
func LoadForEditFrom(path string) (*Config, error) {
	return loadFrom(path, false)
}

func loadFrom(path string, expand bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{Engines: make(map[string]EngineConfig)}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.Engines == nil {
		cfg.Engines = make(map[string]EngineConfig)
	}
	if expand {
		expandConfigEnvVars(&cfg)
	}
	return &cfg, nil
}

// ExampleConfigPath returns the default config file path (for help messages).
func ExampleConfigPath() string {
	return paths.ConfigFile()
}

// Engine returns the engine configuration for kind. The chromium kind is
// always available with default settings.
func (c *Config) Engine(kind string) (EngineConfig, bool) {
	if c != nil {
		if ec, ok := c.Engines[kind]; ok {
			if ec.Type == "" {
				ec.Type = EngineChromium
			}
			return ec, true
		}
	}
	if kind == EngineChromium {
		return EngineConfig{Type: EngineChromium}, true
	}
	return EngineConfig{}, false
}

// EngineKinds returns every launchable kind, sorted.
func (c *Config) EngineKinds() []string {
	seen := map[string]struct{}{EngineChromium: {}}
	if c != nil {
		for kind := range c.Engines {
			seen[kind] = struct{}{}
		}
	}
	kinds := make([]string, 0, len(seen))
	for kind := range seen {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func expandConfigEnvVars(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Log.File = expandEnvVars(cfg.Log.File)
	for name, ec := range cfg.Engines {
		cfg.Engines[name] = expandEngineEnvVars(ec)
	}
}

// ExpandEngineForCurrentEnv returns a copy of ec with ${ENV_VAR} placeholders
// resolved. ec itself is left untouched.
func ExpandEngineForCurrentEnv(ec EngineConfig) EngineConfig {
	ec.Args = slices.Clone(ec.Args)
	ec.Flags = slices.Clone(ec.Flags)
	ec.Env = maps.Clone(ec.Env)
	ec.Headers = maps.Clone(ec.Headers)
	return expandEngineEnvVars(ec)
}

func expandEngineEnvVars(ec EngineConfig) EngineConfig {
	ec.ExecPath = expandEnvVars(ec.ExecPath)
	ec.Command = expandEnvVars(ec.Command)
	ec.URL = expandEnvVars(ec.URL)

	for i := range ec.Args {
		ec.Args[i] = expandEnvVars(ec.Args[i])
	}
	for i := range ec.Flags {
		ec.Flags[i] = expandEnvVars(ec.Flags[i])
	}
	for k, v := range ec.Env {
		ec.Env[k] = expandEnvVars(v)
	}
	for k, v := range ec.Headers {
		ec.Headers[k] = expandEnvVars(v)
	}

	return ec
}

// expandEnvVars replaces ${VAR_NAME} with the value of the environment variable.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarRe.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match // leave unresolved vars as-is
	})
}
