package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
)

func TestNew_NormalizesPaths(t *testing.T) {
	s, err := New(
		VirtualFile{Path: "./index.ts", Content: "import './b.ts'", IsEntry: true},
		VirtualFile{Path: "b.ts", Content: "export {}"},
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	want := []string{"file://b.ts", "file://index.ts"}
	if diff := cmp.Diff(want, s.Paths()); diff != "" {
		t.Errorf("Paths() mismatch (-want +got):\n%s", diff)
	}
	for _, p := range []string{"file://index.ts", "file://b.ts"} {
		if !s.Has(p) {
			t.Errorf("Has(%q) = false, want true", p)
		}
	}
	f, ok := s.Lookup("file://index.ts")
	if !ok || f.Path != "./index.ts" || !f.IsEntry {
		t.Errorf("Lookup(index) = %+v, %v", f, ok)
	}
}

func TestNew_DuplicateCanonicalPath(t *testing.T) {
	_, err := New(
		VirtualFile{Path: "./a.ts"},
		VirtualFile{Path: "/a.ts"},
	)
	if !errors.Is(err, ErrDuplicatePath) {
		t.Fatalf("New() error = %v, want ErrDuplicatePath", err)
	}
}

func TestSnapshot_Entries(t *testing.T) {
	tests := []struct {
		name  string
		files []VirtualFile
		want  int
	}{
		{"none", []VirtualFile{{Path: "a.ts"}, {Path: "b.ts"}}, 0},
		{"one", []VirtualFile{{Path: "a.ts", IsEntry: true}, {Path: "b.ts"}}, 1},
		{"many", []VirtualFile{{Path: "a.ts", IsEntry: true}, {Path: "b.ts", IsEntry: true}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.files...)
			if err != nil {
				t.Fatal(err)
			}
			if got := len(s.Entries()); got != tt.want {
				t.Errorf("len(Entries()) = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSnapshot_NilIsEmpty(t *testing.T) {
	var s *Snapshot
	if s.Len() != 0 || s.Has("file://a") || s.Paths() != nil || s.Files() != nil {
		t.Error("nil snapshot should behave as empty")
	}
}

func TestSnapshot_PathsIsCopy(t *testing.T) {
	s, _ := New(VirtualFile{Path: "a.ts"})
	paths := s.Paths()
	paths[0] = "mutated"
	if s.Paths()[0] != "file://a.ts" {
		t.Error("mutating Paths() result changed the snapshot")
	}
}

func TestFromSpecs(t *testing.T) {
	s, err := FromSpecs(map[string]FileSpec{
		"index.ts":   {Content: "import './b.css'", IsEntry: true},
		"b.css":      {Content: "a{}"},
		"theme.data": {Content: "{}", Loader: "json"},
	})
	if err != nil {
		t.Fatalf("FromSpecs() error: %v", err)
	}
	f, ok := s.Lookup("file://theme.data")
	if !ok || f.Loader != loaderkind.TagJSON {
		t.Errorf("theme.data = %+v, want json loader override", f)
	}

	round := s.Specs()
	if !round["index.ts"].IsEntry {
		t.Error("Specs() lost the entry flag")
	}
}

func TestFromSpecs_BadLoader(t *testing.T) {
	_, err := FromSpecs(map[string]FileSpec{"a.scss": {Loader: "sass"}})
	if err == nil || !strings.Contains(err.Error(), "a.scss") {
		t.Fatalf("FromSpecs() error = %v, want error naming the file", err)
	}
}

func TestReadJSON(t *testing.T) {
	in := `{
  "index.ts": {"content": "console.log(1)", "isEntry": true},
  "util.ts": {"content": "export const x = 1"}
}`
	s, err := ReadJSON(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if got := s.Entries(); len(got) != 1 || got[0].Path != "index.ts" {
		t.Errorf("Entries() = %+v", got)
	}

	if _, err := ReadJSON(strings.NewReader(`{"a": {"contents": "x"}}`)); err == nil {
		t.Error("ReadJSON() accepted unknown field")
	}
}

func TestParseTxtar(t *testing.T) {
	archive := `entry: src/main.ts
-- README.md --
hello
-- src/main.ts --
import './util.ts'
-- src/util.ts --
export {}
`
	ws, err := ParseTxtar([]byte(archive))
	if err != nil {
		t.Fatalf("ParseTxtar() error: %v", err)
	}
	entry, ok := ws.Entry()
	if !ok || entry != "src/main.ts" {
		t.Errorf("Entry() = %q, %v; want src/main.ts", entry, ok)
	}
}

func TestParseTxtar_FirstFileIsEntry(t *testing.T) {
	ws, err := ParseTxtar([]byte("-- a.ts --\n1\n-- b.ts --\n2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if entry, _ := ws.Entry(); entry != "a.ts" {
		t.Errorf("Entry() = %q, want a.ts", entry)
	}
}

func TestParseTxtar_MissingEntry(t *testing.T) {
	if _, err := ParseTxtar([]byte("entry: nope.ts\n-- a.ts --\n1\n")); err == nil {
		t.Error("ParseTxtar() with missing entry succeeded")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "src/index.ts", "import './b.ts'")
	writeFile(t, dir, "src/b.ts", "export {}")
	writeFile(t, dir, "a.css", "a{}")
	writeFile(t, dir, "node_modules/x/index.js", "ignored")
	writeFile(t, dir, "dist/index.js", "ignored")

	ws, err := LoadDir(dir, DirOptions{Ignore: []string{"dist/**"}})
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	s, err := ws.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"file://a.css", "file://src/b.ts", "file://src/index.ts"}
	if diff := cmp.Diff(want, s.Paths()); diff != "" {
		t.Errorf("Paths() mismatch (-want +got):\n%s", diff)
	}
	if entry, _ := ws.Entry(); entry != "src/index.ts" {
		t.Errorf("Entry() = %q, want src/index.ts", entry)
	}
}

func TestLoadDir_Include(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "main.ts", "1")
	writeFile(t, dir, "notes.txt", "2")

	ws, err := LoadDir(dir, DirOptions{Include: []string{"**/*.ts"}, Entry: "main.ts"})
	if err != nil {
		t.Fatal(err)
	}
	if ws.Len() != 1 {
		t.Errorf("Len() = %d, want 1", ws.Len())
	}
}

func TestLoadDir_ExplicitEntryMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.ts", "1")
	if _, err := LoadDir(dir, DirOptions{Entry: "b.ts"}); err == nil {
		t.Error("LoadDir() with missing entry succeeded")
	}
}

func TestNewMatcher_InvalidPattern(t *testing.T) {
	if _, err := NewMatcher([]string{"[unclosed"}, nil); err == nil {
		t.Error("NewMatcher() accepted invalid pattern")
	}
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
