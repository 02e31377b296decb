// Package version holds build metadata reported by the health endpoint.
package version

// Set at build time, e.g.
// go build -ldflags "-X github.com/hrdtbs/gas-metrics-subscription-demo/internal/version.Version=v0.2.0"
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String formats the build metadata for logs.
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}
