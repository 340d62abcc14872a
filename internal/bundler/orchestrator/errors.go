package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/canon"
)

var (
	// ErrNoEntryPoint is returned when a snapshot does not flag exactly one
	// entry file.
	ErrNoEntryPoint = errors.New("no entry point")

	// ErrBuildInProgress is returned when Build is called on a Session that
	// is already building.
	ErrBuildInProgress = errors.New("build already in progress")
)

// EntryError reports how many entry files the snapshot flagged.
type EntryError struct {
	Paths []string
}

func (e *EntryError) Error() string {
	if len(e.Paths) == 0 {
		return "No entry file found"
	}
	return fmt.Sprintf("Expected exactly one entry file, found %d: %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

// Is makes errors.Is(err, ErrNoEntryPoint) match.
func (e *EntryError) Is(target error) bool {
	return target == ErrNoEntryPoint
}

// BuildError collects the errors esbuild reported.
type BuildError struct {
	Messages []string
}

func (e *BuildError) Error() string {
	return strings.Join(e.Messages, "\n")
}

func newBuildError(msgs []api.Message) *BuildError {
	e := &BuildError{Messages: make([]string, 0, len(msgs))}
	for _, m := range msgs {
		e.Messages = append(e.Messages, formatMessage(m))
	}
	return e
}

// formatMessage renders "file:line:col: text" when esbuild attached a
// location. Namespace prefixes are dropped so virtual files read as their
// registered names.
func formatMessage(m api.Message) string {
	if m.Location == nil || m.Location.File == "" {
		return m.Text
	}
	file := m.Location.File
	for _, ns := range []string{"virtual:", "remote:"} {
		file = strings.TrimPrefix(file, ns)
	}
	return fmt.Sprintf("%s:%d:%d: %s", canon.Display(file), m.Location.Line, m.Location.Column, m.Text)
}
