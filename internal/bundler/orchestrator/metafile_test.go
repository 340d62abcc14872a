package orchestrator

import (
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/go-cmp/cmp"
)

const sampleMetafile = `{
  "inputs": {
    "virtual:file://index.ts": {"bytes": 40, "imports": [
      {"path": "file://b.ts", "kind": "import-statement"},
      {"path": "react", "kind": "import-statement", "external": true}
    ]},
    "virtual:file://b.ts": {"bytes": 20, "imports": [
      {"path": "react", "kind": "import-statement", "external": true},
      {"path": "node:fs", "kind": "import-statement", "external": true}
    ]},
    "remote:https://esm.sh/lodash-es": {"bytes": 100, "imports": []}
  },
  "outputs": {
    "dist/index.js": {"bytes": 90, "imports": [], "exports": [], "entryPoint": "virtual:file://index.ts"}
  }
}`

func TestMetafile_Summarize(t *testing.T) {
	m, err := ParseMetafile(sampleMetafile)
	if err != nil {
		t.Fatal(err)
	}
	want := Summary{
		Virtual:  2,
		Remote:   1,
		External: []string{"node:fs", "react"},
		InBytes:  160,
		OutBytes: 90,
		OutFiles: 1,
	}
	if diff := cmp.Diff(want, m.Summarize()); diff != "" {
		t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMetafile_Invalid(t *testing.T) {
	if _, err := ParseMetafile("{"); err == nil {
		t.Error("ParseMetafile accepted truncated JSON")
	}
}

func TestFormatMessage(t *testing.T) {
	tests := []struct {
		msg  api.Message
		want string
	}{
		{api.Message{Text: "boom"}, "boom"},
		{
			api.Message{Text: "File not found: x.ts", Location: &api.Location{File: "virtual:file://src/a.ts", Line: 3, Column: 7}},
			"src/a.ts:3:7: File not found: x.ts",
		},
	}
	for _, tt := range tests {
		if got := formatMessage(tt.msg); got != tt.want {
			t.Errorf("formatMessage() = %q, want %q", got, tt.want)
		}
	}
}

func TestEntryError(t *testing.T) {
	err := &EntryError{Paths: []string{"a.ts", "b.ts"}}
	if got := err.Error(); got != "Expected exactly one entry file, found 2: a.ts, b.ts" {
		t.Errorf("Error() = %q", got)
	}
}
