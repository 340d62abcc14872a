package orchestrator

import (
	"encoding/json"
	"sort"
	"strings"
)

// Metafile is the subset of esbuild's metafile the command reports on.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput is one module that took part in the build.
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"`
}

// MetafileImport is one edge of the module graph.
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput is one emitted file.
type MetafileOutput struct {
	Bytes      int              `json:"bytes"`
	Imports    []MetafileImport `json:"imports"`
	Exports    []string         `json:"exports"`
	EntryPoint string           `json:"entryPoint,omitempty"`
}

// ParseMetafile decodes esbuild's metafile JSON.
func ParseMetafile(data string) (*Metafile, error) {
	var m Metafile
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Summary counts the module graph by origin.
type Summary struct {
	Virtual  int      `json:"virtual"`
	Remote   int      `json:"remote"`
	External []string `json:"external,omitempty"`
	InBytes  int      `json:"inBytes"`
	OutBytes int      `json:"outBytes"`
	OutFiles int      `json:"outFiles"`
}

// Summarize aggregates inputs and outputs. External imports are listed once,
// sorted.
func (m *Metafile) Summarize() Summary {
	var s Summary
	external := map[string]bool{}
	for path, in := range m.Inputs {
		if strings.HasPrefix(path, "remote:") {
			s.Remote++
		} else {
			s.Virtual++
		}
		s.InBytes += in.Bytes
		for _, imp := range in.Imports {
			if imp.External {
				external[imp.Path] = true
			}
		}
	}
	for _, out := range m.Outputs {
		s.OutBytes += out.Bytes
		s.OutFiles++
	}
	for path := range external {
		s.External = append(s.External, path)
	}
	sort.Strings(s.External)
	return s
}
