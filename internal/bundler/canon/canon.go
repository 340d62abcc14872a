// Package canon canonicalizes import specifiers into registry keys.
//
// The same normalization is applied when files are registered and when
// imports are resolved, so "./a.ts", "a.ts" and "/a.ts" all address the
// same virtual file.
package canon

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Scheme is the prefix carried by every canonical path.
const Scheme = "file://"

var leadingSegments = regexp.MustCompile(`^(\./|/)+`)

// Normalize strips any number of leading "./" or "/" segments and prefixes
// the result with Scheme. Normalize is idempotent.
func Normalize(specifier string) string {
	if IsCanonical(specifier) {
		return specifier
	}
	return Scheme + TrimLeading(specifier)
}

// Join returns the canonical path a relative specifier names when it is
// imported from the canonical path importer. For root-level or empty
// importers the result equals Normalize(specifier).
func Join(specifier, importer string) string {
	if importer == "" || !IsRelative(specifier) {
		return Normalize(specifier)
	}
	dir := path.Dir(Display(importer))
	if dir == "." || dir == "/" {
		return Normalize(specifier)
	}
	return Normalize(path.Join(dir, specifier))
}

// TrimLeading removes any run of leading "./" and "/" segments.
func TrimLeading(specifier string) string {
	return leadingSegments.ReplaceAllString(specifier, "")
}

// IsCanonical reports whether path already carries the canonical prefix.
func IsCanonical(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// Display returns path without the canonical prefix, for diagnostics and
// artifact names.
func Display(path string) string {
	return strings.TrimPrefix(path, Scheme)
}

// IsRelative reports whether specifier starts with "./" or "../".
func IsRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

// IsAbsoluteURL reports whether specifier parses as an absolute URL.
//
// Only hierarchical URLs with a host count: "node:fs" stays a bare
// specifier. Canonical paths are not URLs even though they look like one,
// and single-letter schemes are rejected so drive paths ("C:/x") are never
// mistaken for remote modules. A parse failure is a routing signal, not an
// error.
func IsAbsoluteURL(specifier string) bool {
	if IsCanonical(specifier) {
		return false
	}
	u, err := url.Parse(specifier)
	if err != nil {
		return false
	}
	if len(u.Scheme) < 2 {
		return false
	}
	return u.Host != ""
}

// IsRemote reports whether path is an http(s) URL, the only kind of path the
// remote namespace produces.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
