package vloader

import (
	"testing"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
)

func TestLoad(t *testing.T) {
	snap, err := registry.New(
		registry.VirtualFile{Path: "./index.ts", Content: "import './a.module.css'", IsEntry: true},
		registry.VirtualFile{Path: "a.module.css", Content: ".a{}"},
		registry.VirtualFile{Path: "theme", Content: "{}", Loader: loaderkind.TagJSON},
	)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		path     string
		hint     loaderkind.Tag
		want     Content
		notFound string
	}{
		{
			name: "classified",
			path: "file://index.ts",
			want: Content{Contents: "import './a.module.css'", Loader: loaderkind.TagTSX},
		},
		{
			name: "hint wins over classification",
			path: "file://a.module.css",
			hint: loaderkind.TagCSS,
			want: Content{Contents: ".a{}", Loader: loaderkind.TagCSS},
		},
		{
			name: "override wins over hint",
			path: "file://theme",
			hint: loaderkind.TagJS,
			want: Content{Contents: "{}", Loader: loaderkind.TagJSON},
		},
		{
			name: "non canonical path",
			path: "./a.module.css",
			want: Content{Contents: ".a{}", Loader: loaderkind.TagLocalCSS},
		},
		{
			name:     "missing",
			path:     "file://missing.ts",
			notFound: "File not found: missing.ts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, nf := Load(tt.path, tt.hint, snap)
			if tt.notFound != "" {
				if nf == nil {
					t.Fatalf("Load(%q) found %+v, want not found", tt.path, got)
				}
				if nf.Message() != tt.notFound {
					t.Errorf("Message() = %q, want %q", nf.Message(), tt.notFound)
				}
				return
			}
			if nf != nil {
				t.Fatalf("Load(%q) = %s", tt.path, nf.Message())
			}
			if got != tt.want {
				t.Errorf("Load(%q) = %+v, want %+v", tt.path, got, tt.want)
			}
		})
	}
}

func TestLoad_NilSnapshot(t *testing.T) {
	if _, nf := Load("file://a.ts", "", nil); nf == nil {
		t.Error("Load on nil snapshot found a file")
	}
}
