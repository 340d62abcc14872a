package registry

import (
	"fmt"
	"slices"
	"sync"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/canon"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
)

// Workspace is the editable file set owned by the editing collaborator.
//
// The first file added becomes the entry. Deleting the entry promotes the
// next remaining file in insertion order. Builds never see a Workspace, only
// the snapshots it produces.
type Workspace struct {
	mu    sync.Mutex
	order []string
	files map[string]*VirtualFile
}

// NewWorkspace creates an empty workspace.
func NewWorkspace() *Workspace {
	return &Workspace{files: make(map[string]*VirtualFile)}
}

// Add registers a new file, or replaces the content of an existing one.
func (w *Workspace) Add(path, content string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := canon.Normalize(path)
	if f, ok := w.files[key]; ok {
		f.Content = content
		return
	}
	w.files[key] = &VirtualFile{
		Path:    path,
		Content: content,
		IsEntry: len(w.order) == 0,
	}
	w.order = append(w.order, key)
}

// Update replaces the content of an existing file.
func (w *Workspace) Update(path, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[canon.Normalize(path)]
	if !ok {
		return fmt.Errorf("update %s: file not in workspace", path)
	}
	f.Content = content
	return nil
}

// SetLoader overrides suffix classification for a file.
func (w *Workspace) SetLoader(path string, tag loaderkind.Tag) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[canon.Normalize(path)]
	if !ok {
		return fmt.Errorf("set loader %s: file not in workspace", path)
	}
	f.Loader = tag
	return nil
}

// Delete removes a file. Removing a missing file is a no-op.
func (w *Workspace) Delete(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := canon.Normalize(path)
	f, ok := w.files[key]
	if !ok {
		return
	}
	delete(w.files, key)
	w.order = slices.DeleteFunc(w.order, func(k string) bool { return k == key })

	if f.IsEntry && len(w.order) > 0 {
		w.files[w.order[0]].IsEntry = true
	}
}

// SetEntry moves the entry flag to path.
func (w *Workspace) SetEntry(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	target, ok := w.files[canon.Normalize(path)]
	if !ok {
		return fmt.Errorf("set entry %s: file not in workspace", path)
	}
	for _, f := range w.files {
		f.IsEntry = false
	}
	target.IsEntry = true
	return nil
}

// Entry returns the path of the current entry file, if any.
func (w *Workspace) Entry() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, key := range w.order {
		if f := w.files[key]; f.IsEntry {
			return f.Path, true
		}
	}
	return "", false
}

// Len returns the number of files.
func (w *Workspace) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

// Snapshot returns an immutable copy of the current file set.
func (w *Workspace) Snapshot() (*Snapshot, error) {
	w.mu.Lock()
	files := make([]VirtualFile, 0, len(w.order))
	for _, key := range w.order {
		files = append(files, *w.files[key])
	}
	w.mu.Unlock()

	return New(files...)
}
