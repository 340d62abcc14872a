// Package version provides build version information for vfsbundle.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent is sent with every remote module request.
func UserAgent() string {
	return "vfsbundle/" + Version
}
