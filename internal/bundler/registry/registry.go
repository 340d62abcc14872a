// Package registry holds the virtual files visible to a build.
//
// A Snapshot is an immutable mapping from canonical path to VirtualFile. It is
// created fresh for every build and never changes afterwards, so it can be read
// concurrently by every resolve and load hook of that build. Edits go through a
// Workspace, which hands out new snapshots.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/canon"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
)

// ErrDuplicatePath is returned when two input paths normalize to the same
// canonical key.
var ErrDuplicatePath = errors.New("duplicate virtual path")

// VirtualFile is one in-memory source file.
type VirtualFile struct {
	// Path is the path as the editor supplied it ("./src/app.ts").
	Path string

	// Content is the source text.
	Content string

	// IsEntry marks the file the dependency graph walk starts from.
	IsEntry bool

	// Loader optionally overrides suffix classification.
	Loader loaderkind.Tag
}

// Canonical returns the registry key of the file.
func (f VirtualFile) Canonical() string {
	return canon.Normalize(f.Path)
}

// FileSpec is the input registry format for a single file.
type FileSpec struct {
	Content string `json:"content"`
	IsEntry bool   `json:"isEntry"`
	Loader  string `json:"loader,omitempty"`
}

// Snapshot is the immutable state of the virtual file mapping for one build.
// The zero value is an empty snapshot.
type Snapshot struct {
	files map[string]VirtualFile
	paths []string
}

// New creates a snapshot from files. Paths are normalized; two files that
// share a canonical path are rejected.
func New(files ...VirtualFile) (*Snapshot, error) {
	s := &Snapshot{files: make(map[string]VirtualFile, len(files))}
	for _, f := range files {
		key := f.Canonical()
		if prev, ok := s.files[key]; ok {
			return nil, fmt.Errorf("%w: %q and %q both map to %s", ErrDuplicatePath, prev.Path, f.Path, key)
		}
		s.files[key] = f
		s.paths = append(s.paths, key)
	}
	sort.Strings(s.paths)
	return s, nil
}

// FromSpecs creates a snapshot from the input registry format.
func FromSpecs(specs map[string]FileSpec) (*Snapshot, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make([]VirtualFile, 0, len(names))
	for _, name := range names {
		spec := specs[name]
		tag, err := loaderkind.Parse(spec.Loader)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		files = append(files, VirtualFile{
			Path:    name,
			Content: spec.Content,
			IsEntry: spec.IsEntry,
			Loader:  tag,
		})
	}
	return New(files...)
}

// Lookup returns the file registered under the canonical path.
func (s *Snapshot) Lookup(path string) (VirtualFile, bool) {
	if s == nil {
		return VirtualFile{}, false
	}
	f, ok := s.files[path]
	return f, ok
}

// Has reports whether a file is registered under the canonical path.
func (s *Snapshot) Has(path string) bool {
	_, ok := s.Lookup(path)
	return ok
}

// Len returns the number of files.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.paths)
}

// Paths returns the canonical paths in sorted order.
func (s *Snapshot) Paths() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.paths...)
}

// Files returns all files sorted by canonical path.
func (s *Snapshot) Files() []VirtualFile {
	if s == nil {
		return nil
	}
	out := make([]VirtualFile, 0, len(s.paths))
	for _, p := range s.paths {
		out = append(out, s.files[p])
	}
	return out
}

// Entries returns every file flagged as entry. A well-formed snapshot has
// exactly one.
func (s *Snapshot) Entries() []VirtualFile {
	var out []VirtualFile
	for _, f := range s.Files() {
		if f.IsEntry {
			out = append(out, f)
		}
	}
	return out
}

// Specs converts the snapshot back to the input registry format.
func (s *Snapshot) Specs() map[string]FileSpec {
	out := make(map[string]FileSpec, s.Len())
	for _, f := range s.Files() {
		out[f.Path] = FileSpec{Content: f.Content, IsEntry: f.IsEntry, Loader: string(f.Loader)}
	}
	return out
}
