package registry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rogpeppe/go-internal/txtar"
)

// DefaultEntries are the entry candidates tried, in order, when a directory
// source does not name its entry.
var DefaultEntries = []string{
	"index.tsx", "index.ts", "index.jsx", "index.js",
	"src/index.tsx", "src/index.ts", "src/index.jsx", "src/index.js",
	"main.ts", "main.js",
}

// DefaultIgnores are never loaded from a directory.
var DefaultIgnores = []string{
	"**/.git/**",
	"**/node_modules/**",
	"**/.DS_Store",
	"**/*.swp",
	"**/*~",
}

// DirOptions control which files a directory source loads.
type DirOptions struct {
	// Include are doublestar patterns relative to the directory. Empty
	// includes every file.
	Include []string

	// Ignore are doublestar patterns merged with DefaultIgnores.
	Ignore []string

	// Entry names the entry file. Empty tries DefaultEntries, then falls
	// back to the first file loaded.
	Entry string
}

// Matcher decides whether a slash-separated relative path belongs to the
// workspace.
type Matcher struct {
	include []string
	ignore  []string
}

// NewMatcher validates the patterns and returns a Matcher.
func NewMatcher(include, ignore []string) (*Matcher, error) {
	all := append(append([]string(nil), DefaultIgnores...), ignore...)
	for _, p := range append(append([]string(nil), include...), all...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}
	return &Matcher{include: include, ignore: all}, nil
}

// Match reports whether rel should be loaded.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range m.ignore {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, p := range m.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Ignored reports whether a directory should be skipped entirely.
func (m *Matcher) Ignored(relDir string) bool {
	relDir = filepath.ToSlash(relDir)
	for _, p := range m.ignore {
		if ok, _ := doublestar.Match(p, relDir+"/x"); ok {
			return true
		}
	}
	return false
}

// LoadDir reads a directory tree into a new Workspace. Paths are recorded
// relative to dir with forward slashes.
func LoadDir(dir string, opts DirOptions) (*Workspace, error) {
	m, err := NewMatcher(opts.Include, opts.Ignore)
	if err != nil {
		return nil, err
	}

	ws := NewWorkspace()
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if rel != "." && m.Ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !m.Match(rel) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		ws.Add(filepath.ToSlash(rel), string(data))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", dir, err)
	}

	if opts.Entry != "" {
		if err := ws.SetEntry(opts.Entry); err != nil {
			return nil, fmt.Errorf("entry %q not found in %s", opts.Entry, dir)
		}
		return ws, nil
	}
	for _, candidate := range DefaultEntries {
		if ws.SetEntry(candidate) == nil {
			break
		}
	}
	return ws, nil
}

// ReadJSON decodes the input registry format.
func ReadJSON(r io.Reader) (*Snapshot, error) {
	var specs map[string]FileSpec
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&specs); err != nil {
		return nil, fmt.Errorf("decoding registry: %w", err)
	}
	return FromSpecs(specs)
}

// LoadJSON reads the input registry format from a file.
func LoadJSON(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	s, err := ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseTxtar reads a txtar archive into a Workspace. A comment line of the
// form "entry: <path>" selects the entry; otherwise the first file is it.
func ParseTxtar(data []byte) (*Workspace, error) {
	ar := txtar.Parse(data)

	ws := NewWorkspace()
	for _, f := range ar.Files {
		ws.Add(f.Name, string(f.Data))
	}

	if entry := txtarEntry(ar.Comment); entry != "" {
		if err := ws.SetEntry(entry); err != nil {
			return nil, fmt.Errorf("archive entry %q: %w", entry, err)
		}
	}
	return ws, nil
}

// LoadTxtar reads a txtar archive file into a Workspace.
func LoadTxtar(path string) (*Workspace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ws, err := ParseTxtar(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ws, nil
}

func txtarEntry(comment []byte) string {
	sc := bufio.NewScanner(strings.NewReader(string(comment)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimPrefix(line, "#")
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "entry:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
