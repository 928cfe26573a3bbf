// Package buildconfig exposes build-time version metadata injected via
// -ldflags, e.g.
//
//	go build -ldflags "-X github.com/frontier-alpha/cvrf/internal/buildconfig.version=v0.3.0"
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo returns the full build metadata for log and status output.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
