// Package resolver decides, for every import the bundler discovers, which
// namespace it belongs to and what its canonical path is.
//
// Resolve is a pure function of the specifier, the importer, the import kind
// and the registry snapshot. It never mutates the snapshot and is safe to
// call concurrently.
package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/canon"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
)

// DefaultMirror is the remote module registry used for bare specifiers.
const DefaultMirror = "https://esm.sh"

// Namespace is the routing tag that selects the loader for a module.
type Namespace string

const (
	// NamespaceVirtual modules are served from the registry snapshot.
	NamespaceVirtual Namespace = "virtual"
	// NamespaceRemote modules are fetched over HTTP.
	NamespaceRemote Namespace = "remote"
	// NamespaceExternal modules are left as imports in the output.
	NamespaceExternal Namespace = "external"
)

// String returns the string representation of the Namespace.
func (n Namespace) String() string {
	return string(n)
}

// Kind is the syntactic form of an import.
type Kind string

const (
	KindEntryPoint     Kind = "entry-point"
	KindImport         Kind = "import-statement"
	KindRequire        Kind = "require-call"
	KindDynamicImport  Kind = "dynamic-import"
	KindRequireResolve Kind = "require-resolve"
	KindCSSImport      Kind = "import-rule"
	KindCSSComposes    Kind = "composes-from"
	KindCSSURL         Kind = "url-token"
)

// ErrNotFound indicates a virtual specifier is absent from the snapshot.
var ErrNotFound = errors.New("virtual file not found")

// NotFoundError reports a relative or entry specifier whose canonical path
// is not registered.
type NotFoundError struct {
	Specifier string
	Importer  string
	Path      string
}

func (e *NotFoundError) Error() string {
	if e.Importer == "" {
		return fmt.Sprintf("File not found: %s", canon.Display(e.Path))
	}
	return fmt.Sprintf("File not found: %s (imported as %q from %s)", canon.Display(e.Path), e.Specifier, canon.Display(e.Importer))
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Resolution contains the result of resolving one import.
type Resolution struct {
	// Path is the canonical path for virtual modules, the URL for remote
	// modules and the untouched specifier for external ones.
	Path string

	// Namespace selects the loader.
	Namespace Namespace

	// Loader is the classification hint for virtual modules.
	Loader loaderkind.Tag

	// Err is non-nil when a virtual specifier is not registered.
	Err error
}

// OK returns true if the resolution succeeded.
func (r Resolution) OK() bool {
	return r.Err == nil && r.Path != ""
}

// Options configure a Resolver.
type Options struct {
	// Mirror is the base URL bare specifiers are rewritten onto.
	// Empty means DefaultMirror.
	Mirror string

	// External lists bare specifiers left unresolved. An entry matches the
	// exact name and its sub-paths ("react" matches "react/jsx-runtime");
	// a trailing "*" matches by prefix ("node:*").
	External []string
}

// Resolver implements the routing decision.
type Resolver struct {
	mirror   string
	external []string
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	mirror := strings.TrimRight(opts.Mirror, "/")
	if mirror == "" {
		mirror = DefaultMirror
	}
	return &Resolver{
		mirror:   mirror,
		external: append([]string(nil), opts.External...),
	}
}

// Mirror returns the registry mirror base URL.
func (r *Resolver) Mirror() string {
	return r.mirror
}

// MirrorURL rewrites a bare specifier onto the mirror. The same specifier
// always yields the same URL.
func (r *Resolver) MirrorURL(specifier string) string {
	return r.mirror + "/" + canon.TrimLeading(specifier)
}

// Resolve routes one import. The checks run in a fixed order: absolute URLs
// and entry points first, then imports made from remote code, then the
// relative/bare split.
func (r *Resolver) Resolve(specifier, importer string, kind Kind, snap *registry.Snapshot) Resolution {
	if canon.IsAbsoluteURL(specifier) {
		return Resolution{Path: specifier, Namespace: NamespaceRemote}
	}

	if kind == KindEntryPoint {
		return r.virtual(specifier, "", snap)
	}

	if canon.IsRemote(importer) {
		return Resolution{Path: r.fromRemote(specifier, importer), Namespace: NamespaceRemote}
	}

	if canon.IsRelative(specifier) {
		return r.virtual(specifier, importer, snap)
	}

	if path := canon.Normalize(specifier); snap.Has(path) {
		return r.virtual(specifier, importer, snap)
	}
	if r.isExternal(specifier) {
		return Resolution{Path: specifier, Namespace: NamespaceExternal}
	}
	return Resolution{Path: r.MirrorURL(specifier), Namespace: NamespaceRemote}
}

// virtual resolves relative specifiers against the importer's directory;
// bare ones are registry keys from the root.
func (r *Resolver) virtual(specifier, importer string, snap *registry.Snapshot) Resolution {
	path := canon.Join(specifier, importer)
	res := Resolution{Path: path, Namespace: NamespaceVirtual, Loader: loaderkind.Classify(specifier)}
	if !snap.Has(path) {
		res.Err = &NotFoundError{Specifier: specifier, Importer: importer, Path: path}
	}
	return res
}

// fromRemote keeps imports made inside fetched code on the remote side.
// Relative specifiers resolve against the importer URL; everything else is
// rewritten onto the mirror.
func (r *Resolver) fromRemote(specifier, importer string) string {
	if canon.IsRelative(specifier) {
		base, err := url.Parse(importer)
		if err == nil {
			if ref, err := url.Parse(specifier); err == nil {
				return base.ResolveReference(ref).String()
			}
		}
	}
	return r.MirrorURL(specifier)
}

func (r *Resolver) isExternal(specifier string) bool {
	for _, pattern := range r.external {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(specifier, prefix) {
				return true
			}
			continue
		}
		if specifier == pattern || strings.HasPrefix(specifier, pattern+"/") {
			return true
		}
	}
	return false
}
