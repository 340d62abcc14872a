// Package loaderkind defines the loader tags that tell the bundler how to
// interpret raw module content.
package loaderkind

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Tag represents a content loader.
type Tag string

const (
	// Script loaders.

	// TagJS is plain JavaScript, also the fallback for unknown suffixes.
	TagJS Tag = "js"
	// TagJSX is JavaScript with JSX syntax.
	TagJSX Tag = "jsx"
	// TagTS is TypeScript without JSX.
	TagTS Tag = "ts"
	// TagTSX is TypeScript with JSX syntax.
	TagTSX Tag = "tsx"

	// Style loaders.

	// TagCSS is global CSS.
	TagCSS Tag = "css"
	// TagLocalCSS is a CSS module whose class names are scoped locally.
	TagLocalCSS Tag = "local-css"

	// Data loaders.

	// TagJSON is a JSON document exposed as a module.
	TagJSON Tag = "json"
	// TagText is raw text exposed as a string export.
	TagText Tag = "text"
)

// Kind groups tags into broad content classes.
type Kind string

const (
	KindScript Kind = "script"
	KindStyle  Kind = "style"
	KindData   Kind = "data"
	KindText   Kind = "text"
)

// String returns the string representation of the Tag.
func (t Tag) String() string {
	return string(t)
}

// Kind returns the content class of the tag.
func (t Tag) Kind() Kind {
	switch t {
	case TagCSS, TagLocalCSS:
		return KindStyle
	case TagJSON:
		return KindData
	case TagText:
		return KindText
	}
	return KindScript
}

// IsModule returns true for styles whose names are scoped per file.
func (t Tag) IsModule() bool {
	return t == TagLocalCSS
}

// ESBuild returns the esbuild loader for the tag.
func (t Tag) ESBuild() api.Loader {
	switch t {
	case TagJSX:
		return api.LoaderJSX
	case TagTS:
		return api.LoaderTS
	case TagTSX:
		return api.LoaderTSX
	case TagCSS:
		return api.LoaderCSS
	case TagLocalCSS:
		return api.LoaderLocalCSS
	case TagJSON:
		return api.LoaderJSON
	case TagText:
		return api.LoaderText
	}
	return api.LoaderJS
}

// AllTags returns all defined tags.
func AllTags() []Tag {
	return []Tag{TagJS, TagJSX, TagTS, TagTSX, TagCSS, TagLocalCSS, TagJSON, TagText}
}

// Parse converts a user supplied loader name into a Tag.
// The empty string parses to the empty Tag, meaning "classify by suffix".
func Parse(name string) (Tag, error) {
	if name == "" {
		return "", nil
	}
	name = strings.ToLower(name)
	for _, t := range AllTags() {
		if string(t) == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown loader %q", name)
}

type rule struct {
	suffix string
	tag    Tag
}

// rules is ordered most specific suffix first; Classify returns the first
// match, so compound suffixes must precede the suffixes they end with.
var rules = []rule{
	{"module.css", TagLocalCSS},
	{"d.ts", TagTS},
	{"ts", TagTSX},
	{"tsx", TagTSX},
	{"mts", TagTS},
	{"cts", TagTS},
	{"jsx", TagJSX},
	{"mjs", TagJS},
	{"cjs", TagJS},
	{"js", TagJS},
	{"css", TagCSS},
	{"json", TagJSON},
	{"txt", TagText},
	{"md", TagText},
	{"html", TagText},
	{"svg", TagText},
}

// Classify returns the loader tag for path based on its suffix.
// Unknown suffixes classify as TagJS. Classify never fails.
func Classify(path string) Tag {
	for _, r := range rules {
		if strings.HasSuffix(path, "."+r.suffix) {
			return r.tag
		}
	}
	return TagJS
}
