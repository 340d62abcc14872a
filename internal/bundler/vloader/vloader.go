// Package vloader serves module content out of a registry snapshot.
package vloader

import (
	"fmt"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/canon"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
)

// Content is a loaded virtual module.
type Content struct {
	Contents string
	Loader   loaderkind.Tag
}

// NotFound is the diagnostic returned for a path missing from the snapshot.
type NotFound struct {
	Path string
}

// Message is the text reported to the bundler.
func (n *NotFound) Message() string {
	return fmt.Sprintf("File not found: %s", canon.Display(n.Path))
}

// Load looks up a canonical path. The loader is the file's own override if
// set, then hint, then the suffix classification of the registered path.
func Load(path string, hint loaderkind.Tag, snap *registry.Snapshot) (Content, *NotFound) {
	f, ok := snap.Lookup(canon.Normalize(path))
	if !ok {
		return Content{}, &NotFound{Path: canon.Normalize(path)}
	}

	loader := f.Loader
	if loader == "" {
		loader = hint
	}
	if loader == "" {
		loader = loaderkind.Classify(f.Path)
	}
	return Content{Contents: f.Content, Loader: loader}, nil
}
