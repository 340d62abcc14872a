// Package hooks defines the plugin contract between the engine and a host
// bundler, and adapts it to esbuild.
//
// The contract has four operations: Name, OnResolve, OnLoad and OnEnd. Any
// host that can call them with the shapes below can drive the engine; ESBuild
// is the adapter for github.com/evanw/esbuild.
package hooks

import (
	"context"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/resolver"
)

// Message is a diagnostic attached to a hook result.
type Message struct {
	Text string
}

// ResolveArgs are the inputs of OnResolve.
type ResolveArgs struct {
	Path       string
	Importer   string
	Kind       resolver.Kind
	Namespace  string
	PluginData any
}

// ResolveResult routes one import. External results are left as imports in
// the output and never loaded.
type ResolveResult struct {
	Path       string
	Namespace  resolver.Namespace
	PluginData any
	External   bool
	Errors     []Message
}

// LoadArgs are the inputs of OnLoad.
type LoadArgs struct {
	Path       string
	Namespace  resolver.Namespace
	PluginData any
}

// LoadResult carries module content, or Errors when the module cannot be
// produced.
type LoadResult struct {
	Contents string
	Loader   loaderkind.Tag
	Errors   []Message
}

// EndResult summarizes the finished build for OnEnd.
type EndResult struct {
	Errors   []Message
	Warnings []Message
	Outputs  int
}

// Plugin is the capability set a host bundler drives.
type Plugin interface {
	Name() string
	OnResolve(ResolveArgs) (ResolveResult, error)
	OnLoad(context.Context, LoadArgs) (LoadResult, error)
	OnEnd(EndResult)
}

// Errorf is shorthand for a single-message error list.
func Errorf(text string) []Message {
	return []Message{{Text: text}}
}
