package version

import (
	"runtime/debug"
	"testing"
)

func TestResolvePrefersStampedVersion(t *testing.T) {
	got := resolve("v1.4.0", func() (*debug.BuildInfo, bool) {
		t.Fatal("build info read despite stamped version")
		return nil, false
	})
	if got != "v1.4.0" {
		t.Fatalf("resolve() = %q, want %q", got, "v1.4.0")
	}
}

func TestResolveFallsBackToModuleVersion(t *testing.T) {
	got := resolve("dev", func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}}, true
	})
	if got != "v0.3.1" {
		t.Fatalf("resolve() = %q, want %q", got, "v0.3.1")
	}
}

func TestResolveIgnoresDevelBuilds(t *testing.T) {
	got := resolve("", func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true
	})
	if got != "dev" {
		t.Fatalf("resolve() = %q, want %q", got, "dev")
	}
}
