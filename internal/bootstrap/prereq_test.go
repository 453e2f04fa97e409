package bootstrap

import (
	"errors"
	"strings"
	"testing"

	"github.com/whuanle/easytouch/internal/config"
)

func lookupExcept(missing ...string) lookupPathFunc {
	return func(bin string) (string, error) {
		for _, m := range missing {
			if bin == m {
				return "", errors.New("not found")
			}
		}
		return "/usr/bin/" + bin, nil
	}
}

func TestCheckEngineMissingStdioRuntime(t *testing.T) {
	_, err := checkEngineWithLookup(config.EngineConfig{
		Type:    config.EngineMCP,
		Command: "npx",
		Args:    []string{"-y", "@playwright/mcp"},
	}, lookupExcept("npx"))
	if err == nil {
		t.Fatal("checkEngineWithLookup() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), `required runtime "npx"`) {
		t.Fatalf("checkEngineWithLookup() error = %q, want to contain %q", err.Error(), `required runtime "npx"`)
	}
}

func TestCheckEngineEnvWrapperChecksUnderlyingRuntime(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"assignment", []string{"UV_CACHE_DIR=/tmp/uv", "uvx", "mcp-server"}},
		{"split string", []string{"-S", "FOO=1 uvx mcp-server"}},
		{"split string inline", []string{"--split-string=uvx mcp-server"}},
		{"unset consumes value", []string{"-u", "HOME", "uvx"}},
		{"chdir consumes value", []string{"--chdir", "/tmp", "uvx"}},
		{"double dash", []string{"--", "A=1", "'uvx'"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := checkEngineWithLookup(config.EngineConfig{
				Type:    config.EngineMCP,
				Command: "/usr/bin/env",
				Args:    tc.args,
			}, lookupExcept("uvx"))
			if err == nil || !strings.Contains(err.Error(), `required runtime "uvx"`) {
				t.Fatalf("checkEngineWithLookup() error = %v, want missing uvx", err)
			}
		})
	}
}

func TestCheckEngineSkipsHTTPMCP(t *testing.T) {
	_, err := checkEngineWithLookup(config.EngineConfig{
		Type: config.EngineMCP,
		URL:  "https://example.com/mcp",
	}, lookupExcept())
	if err != nil {
		t.Fatalf("checkEngineWithLookup() error = %v, want nil", err)
	}
}

func TestCheckEngineChromiumUsesConfiguredPath(t *testing.T) {
	got, err := checkEngineWithLookup(config.EngineConfig{
		Type:     config.EngineChromium,
		ExecPath: "/opt/chrome/chrome",
	}, func(bin string) (string, error) { return bin, nil })
	if err != nil {
		t.Fatalf("checkEngineWithLookup() error = %v", err)
	}
	if got != "/opt/chrome/chrome" {
		t.Fatalf("checkEngineWithLookup() = %q, want %q", got, "/opt/chrome/chrome")
	}
}

func TestCheckEngineChromiumConfiguredPathMissing(t *testing.T) {
	_, err := checkEngineWithLookup(config.EngineConfig{
		Type:     config.EngineChromium,
		ExecPath: "/opt/chrome/chrome",
	}, lookupExcept("/opt/chrome/chrome"))
	if !errors.Is(err, ErrBrowserNotFound) {
		t.Fatalf("checkEngineWithLookup() error = %v, want ErrBrowserNotFound", err)
	}
}

func TestCheckEngineChromiumSearchesCandidates(t *testing.T) {
	candidates := browserCandidates()
	last := candidates[len(candidates)-1]

	got, err := checkEngineWithLookup(config.EngineConfig{Type: config.EngineChromium}, func(bin string) (string, error) {
		if bin == last {
			return "/found/" + bin, nil
		}
		return "", errors.New("not found")
	})
	if err != nil {
		t.Fatalf("checkEngineWithLookup() error = %v", err)
	}
	if got != "/found/"+last {
		t.Fatalf("checkEngineWithLookup() = %q, want %q", got, "/found/"+last)
	}
}

func TestCheckEngineChromiumNothingInstalled(t *testing.T) {
	_, err := checkEngineWithLookup(config.EngineConfig{}, func(string) (string, error) {
		return "", errors.New("not found")
	})
	if !errors.Is(err, ErrBrowserNotFound) {
		t.Fatalf("checkEngineWithLookup() error = %v, want ErrBrowserNotFound", err)
	}
}
