// Package cli provides shared utilities for the vfsbundle command.
package cli

// Exit codes follow Unix conventions:
//   - 0: Success
//   - 1: Error (bad flags, unreadable sources, failed build)
//   - 2: Drift (-check found output that differs from a fresh build)
const (
	// ExitOK indicates the build succeeded.
	ExitOK = 0

	// ExitError indicates a fatal error or a failed build.
	ExitError = 1

	// ExitWarning indicates the build succeeded but something needs
	// attention: -check found stale, missing or extra files in the output
	// directory.
	ExitWarning = 2
)
