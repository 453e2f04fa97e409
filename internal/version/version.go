package version

import (
	"runtime/debug"
	"sync"
)

// build is set with -ldflags "-X github.com/whuanle/easytouch/internal/version.build=v1.2.3".
var build = "dev"

var resolved = sync.OnceValue(func() string {
	return resolve(build, debug.ReadBuildInfo)
})

// String returns the release version, the module version from build info, or "dev".
func String() string {
	return resolved()
}

func resolve(stamped string, readBuildInfo func() (*debug.BuildInfo, bool)) string {
	if stamped != "" && stamped != "dev" {
		return stamped
	}
	info, ok := readBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}
