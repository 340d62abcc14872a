// Package outdir writes build artifacts to disk and compares them with what
// is already there.
package outdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/orchestrator"
)

// LockFile is created inside the output directory while it is written.
const LockFile = ".vfsbundle.lock"

// ManifestFile lists the artifacts the last Write produced, one per line.
const ManifestFile = ".vfsbundle.manifest"

// ErrUnsafeName is returned for artifact names that would escape the output
// directory.
var ErrUnsafeName = errors.New("artifact name escapes output directory")

// Write stores artifacts in dir, creating it if needed. Each file is written
// to a temporary name and renamed into place. Artifacts an earlier Write
// produced that are not part of this set are removed; other files in dir are
// left alone. Concurrent writers to the same dir are serialized by a lock
// file.
func Write(dir string, artifacts []orchestrator.Artifact) error {
	names := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		if err := checkName(a.Filename); err != nil {
			return err
		}
		names = append(names, a.Filename)
	}
	return withLock(dir, func() error {
		previous, err := readManifest(dir)
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			if err := writeAtomic(filepath.Join(dir, a.Filename), []byte(a.Content)); err != nil {
				return fmt.Errorf("write %s: %w", a.Filename, err)
			}
		}
		if err := removeStale(dir, previous, names); err != nil {
			return err
		}
		sort.Strings(names)
		manifest := strings.Join(names, "\n")
		if manifest != "" {
			manifest += "\n"
		}
		return writeAtomic(filepath.Join(dir, ManifestFile), []byte(manifest))
	})
}

// readManifest returns the names recorded by the last Write. Lines that are
// not safe artifact names are skipped.
func readManifest(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(data), "\n") {
		if checkName(line) == nil {
			names = append(names, line)
		}
	}
	return names, nil
}

func removeStale(dir string, previous, current []string) error {
	keep := make(map[string]bool, len(current))
	for _, name := range current {
		keep[name] = true
	}
	for _, name := range previous {
		if keep[name] {
			continue
		}
		err := os.Remove(filepath.Join(dir, name))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale %s: %w", name, err)
		}
	}
	return nil
}

func withLock(dir string, fn func() error) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	fileLock := flock.New(filepath.Join(dir, LockFile))
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	return fn()
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}

	cleaned := false
	defer func() {
		if cleaned {
			return
		}
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	cleaned = true
	return nil
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || name == LockFile || name == ManifestFile {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return nil
}

// Drift describes one file that differs between a build and dir.
type Drift struct {
	Filename string

	// Missing is set when the file was built but is not on disk.
	Missing bool

	// Extra is set when the file is on disk but was not built.
	Extra bool

	// Diff is a unified diff from the on-disk content to the built content.
	Diff string
}

// Report is the outcome of Check.
type Report struct {
	Drift []Drift
}

// Clean returns true if dir matches the build exactly.
func (r Report) Clean() bool {
	return len(r.Drift) == 0
}

// String renders every drift entry the way diff(1) output is usually read.
func (r Report) String() string {
	var sb strings.Builder
	for _, d := range r.Drift {
		switch {
		case d.Missing:
			fmt.Fprintf(&sb, "missing: %s\n", d.Filename)
		case d.Extra:
			fmt.Fprintf(&sb, "extra: %s\n", d.Filename)
		}
		sb.WriteString(d.Diff)
	}
	return sb.String()
}

// Check compares artifacts with the files in dir without changing anything.
// Hidden files in dir, including the lock file, are not reported as extra.
func Check(dir string, artifacts []orchestrator.Artifact) (Report, error) {
	var report Report
	built := make(map[string]bool, len(artifacts))

	for _, a := range artifacts {
		if err := checkName(a.Filename); err != nil {
			return Report{}, err
		}
		built[a.Filename] = true

		data, err := os.ReadFile(filepath.Join(dir, a.Filename))
		switch {
		case errors.Is(err, os.ErrNotExist):
			report.Drift = append(report.Drift, Drift{
				Filename: a.Filename,
				Missing:  true,
				Diff:     unified(a.Filename, "", a.Content),
			})
			continue
		case err != nil:
			return Report{}, fmt.Errorf("read %s: %w", a.Filename, err)
		}
		if string(data) != a.Content {
			report.Drift = append(report.Drift, Drift{
				Filename: a.Filename,
				Diff:     unified(a.Filename, string(data), a.Content),
			})
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Report{}, fmt.Errorf("read output directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || built[name] {
			continue
		}
		report.Drift = append(report.Drift, Drift{Filename: name, Extra: true})
	}

	sort.Slice(report.Drift, func(i, j int) bool {
		return report.Drift[i].Filename < report.Drift[j].Filename
	})
	return report, nil
}

func unified(name, was, now string) string {
	diff := difflib.UnifiedDiff{
		A:        splitLines(was),
		B:        splitLines(now),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	}
	text, _ := difflib.GetUnifiedDiffString(diff)
	return text
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return difflib.SplitLines(s)
}
