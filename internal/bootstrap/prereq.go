package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/whuanle/easytouch/internal/config"
)

// ErrBrowserNotFound is returned when no Chromium-family browser can be located.
var ErrBrowserNotFound = errors.New("no chromium-based browser found")

type lookupPathFunc func(file string) (string, error)

// CheckEngine verifies that the executables an engine needs are installed.
// For chromium engines it returns the resolved browser path.
func CheckEngine(ec config.EngineConfig) (string, error) {
	return checkEngineWithLookup(ec, exec.LookPath)
}

func checkEngineWithLookup(ec config.EngineConfig, lookup lookupPathFunc) (string, error) {
	if lookup == nil {
		lookup = exec.LookPath
	}

	switch ec.Type {
	case config.EngineMCP:
		return "", checkStdioRuntime(ec, lookup)
	default:
		return findBrowser(ec.ExecPath, lookup)
	}
}

func checkStdioRuntime(ec config.EngineConfig, lookup lookupPathFunc) error {
	if !ec.IsStdio() {
		return nil
	}

	command := strings.TrimSpace(ec.Command)
	if _, err := lookup(command); err != nil {
		return fmt.Errorf("required runtime %q not found in PATH", command)
	}
	if filepath.Base(command) != "env" {
		return nil
	}

	wrapped := envTarget(ec.Args)
	if wrapped == "" {
		return nil
	}
	if _, err := lookup(wrapped); err != nil {
		return fmt.Errorf("required runtime %q not found in PATH", wrapped)
	}
	return nil
}

// envTarget returns the program an env(1) invocation would run, skipping
// options and KEY=value assignments.
func envTarget(args []string) string {
	for i := 0; i < len(args); i++ {
		token := strings.TrimSpace(args[i])
		switch {
		case token == "":
		case token == "--":
			return firstProgram(args[i+1:])
		case token == "-S" || token == "--split-string":
			if i+1 >= len(args) {
				return ""
			}
			i++
			if target := envTarget(strings.Fields(args[i])); target != "" {
				return target
			}
		case strings.HasPrefix(token, "-S="):
			if target := envTarget(strings.Fields(strings.TrimPrefix(token, "-S="))); target != "" {
				return target
			}
		case strings.HasPrefix(token, "--split-string="):
			if target := envTarget(strings.Fields(strings.TrimPrefix(token, "--split-string="))); target != "" {
				return target
			}
		case token == "-u" || token == "--unset" || token == "-C" || token == "--chdir":
			i++
		case strings.HasPrefix(token, "-"):
		case strings.Index(token, "=") > 0:
		default:
			return unquote(token)
		}
	}
	return ""
}

func firstProgram(args []string) string {
	for _, raw := range args {
		token := unquote(strings.TrimSpace(raw))
		if token == "" || strings.Index(token, "=") > 0 {
			continue
		}
		return token
	}
	return ""
}

func unquote(token string) string {
	if len(token) < 2 {
		return token
	}
	first, last := token[0], token[len(token)-1]
	if (first == '\'' || first == '"') && first == last {
		return token[1 : len(token)-1]
	}
	return token
}

func findBrowser(configured string, lookup lookupPathFunc) (string, error) {
	if configured = strings.TrimSpace(configured); configured != "" {
		path, err := lookup(configured)
		if err != nil {
			return "", fmt.Errorf("%w: exec_path %q: %v", ErrBrowserNotFound, configured, err)
		}
		return path, nil
	}

	for _, candidate := range browserCandidates() {
		if path, err := lookup(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: install Chrome or Chromium, or set exec_path", ErrBrowserNotFound)
}

func browserCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
			"google-chrome",
			"chromium",
		}
	case "windows":
		candidates := []string{"chrome", "chrome.exe", "msedge.exe"}
		for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)", "LocalAppData"} {
			if dir := os.Getenv(env); dir != "" {
				candidates = append(candidates,
					filepath.Join(dir, "Google", "Chrome", "Application", "chrome.exe"),
					filepath.Join(dir, "Microsoft", "Edge", "Application", "msedge.exe"),
				)
			}
		}
		return candidates
	default:
		return []string{
			"headless_shell",
			"headless-shell",
			"chromium",
			"chromium-browser",
			"google-chrome",
			"google-chrome-stable",
			"google-chrome-beta",
			"microsoft-edge",
			"/usr/bin/google-chrome",
			"/snap/bin/chromium",
		}
	}
}
