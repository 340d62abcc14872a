package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/remote"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/resolver"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/trace"
)

func snapshot(t *testing.T, files ...registry.VirtualFile) *registry.Snapshot {
	t.Helper()
	s, err := registry.New(files...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := NewSession(opts)
	if err != nil {
		t.Fatalf("NewSession() error: %v", err)
	}
	return s
}

// mirror serves modules by path and counts requests.
func mirror(t *testing.T, modules map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, ok := modules[r.URL.Path]
		if !ok {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func jsOutput(t *testing.T, res Result) string {
	t.Helper()
	for _, a := range res.Artifacts {
		if strings.HasSuffix(a.Filename, ".js") {
			return a.Content
		}
	}
	t.Fatalf("no .js artifact in %+v", res.Artifacts)
	return ""
}

func TestBuild_LocalImport(t *testing.T) {
	s := newSession(t, Options{})
	snap := snapshot(t,
		registry.VirtualFile{Path: "index.ts", Content: "import { b } from './b.ts'\nconsole.log(b)", IsEntry: true},
		registry.VirtualFile{Path: "b.ts", Content: "export const b: string = 'from-b'"},
	)

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	if res.Err != nil {
		t.Fatalf("Build() error: %v", res.Err)
	}
	if len(res.Artifacts) == 0 {
		t.Fatal("Build() returned no artifacts")
	}
	if out := jsOutput(t, res); !strings.Contains(out, "from-b") {
		t.Errorf("output does not inline b.ts:\n%s", out)
	}
	for _, a := range res.Artifacts {
		if strings.Contains(a.Filename, "/") {
			t.Errorf("artifact %q is not a base name", a.Filename)
		}
	}

	if res.Metadata == nil || res.Metadata.Filename != MetaFilename {
		t.Fatalf("Metadata = %+v, want %s", res.Metadata, MetaFilename)
	}
	if !strings.Contains(res.Metadata.Content, "\n  \"inputs\"") {
		t.Errorf("meta.json is not indented JSON:\n%s", res.Metadata.Content)
	}
	if res.Meta == nil || res.Meta.Summarize().Virtual != 2 {
		t.Errorf("Meta summary = %+v, want 2 virtual inputs", res.Meta)
	}
	all := res.All()
	if all[len(all)-1].Filename != MetaFilename {
		t.Error("All() does not end with the metadata artifact")
	}
}

func TestBuild_NestedImports(t *testing.T) {
	s := newSession(t, Options{})
	snap := snapshot(t,
		registry.VirtualFile{Path: "src/index.ts", Content: "import { view } from './app.ts'\nconsole.log(view)", IsEntry: true},
		registry.VirtualFile{Path: "src/app.ts", Content: "import { shared } from '../shared.ts'\nexport const view = 'nested-' + shared"},
		registry.VirtualFile{Path: "shared.ts", Content: "export const shared = 'root-shared'"},
	)

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	if res.Err != nil {
		t.Fatalf("Build() error: %v", res.Err)
	}
	out := jsOutput(t, res)
	for _, want := range []string{"nested-", "root-shared"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := res.Meta.Summarize().Virtual; got != 3 {
		t.Errorf("virtual inputs = %d, want 3", got)
	}
}

func TestBuild_NoEntryPoint(t *testing.T) {
	rec := &trace.Recorder{}
	s := newSession(t, Options{Tracer: rec})
	snap := snapshot(t,
		registry.VirtualFile{Path: "a.ts", Content: "1"},
		registry.VirtualFile{Path: "b.ts", Content: "2"},
	)

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	if !errors.Is(res.Err, ErrNoEntryPoint) {
		t.Fatalf("Build() error = %v, want ErrNoEntryPoint", res.Err)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Filename != ErrorFilename {
		t.Fatalf("Artifacts = %+v, want one %s", res.Artifacts, ErrorFilename)
	}
	if res.Artifacts[0].Content != "No entry file found" {
		t.Errorf("error content = %q", res.Artifacts[0].Content)
	}
	if n := len(rec.Resolves()) + len(rec.Loads()); n != 0 {
		t.Errorf("got %d resolve/load calls, want 0", n)
	}
	if ends := rec.Ends(); len(ends) != 1 || ends[0].Err == nil {
		t.Errorf("End events = %+v, want one failure", ends)
	}
}

func TestBuild_MultipleEntries(t *testing.T) {
	s := newSession(t, Options{})
	snap := snapshot(t,
		registry.VirtualFile{Path: "a.ts", IsEntry: true},
		registry.VirtualFile{Path: "b.ts", IsEntry: true},
	)

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	var entryErr *EntryError
	if !errors.As(res.Err, &entryErr) {
		t.Fatalf("Build() error = %v, want *EntryError", res.Err)
	}
	if len(entryErr.Paths) != 2 {
		t.Errorf("Paths = %v, want 2", entryErr.Paths)
	}
	if len(res.All()) != 1 {
		t.Errorf("All() = %d artifacts, want 1", len(res.All()))
	}
}

func TestBuild_RelativeMissing(t *testing.T) {
	rec := &trace.Recorder{}
	s := newSession(t, Options{Tracer: rec})
	snap := snapshot(t, registry.VirtualFile{Path: "index.ts", Content: "import './missing.ts'", IsEntry: true})

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	if res.Err == nil {
		t.Fatal("Build() succeeded with a missing relative import")
	}
	var be *BuildError
	if !errors.As(res.Err, &be) {
		t.Fatalf("Build() error = %T, want *BuildError", res.Err)
	}
	if !strings.Contains(res.Artifacts[0].Content, "File not found: missing.ts") {
		t.Errorf("error artifact = %q", res.Artifacts[0].Content)
	}
	if len(rec.Fetches()) != 0 {
		t.Error("missing relative import was fetched remotely")
	}
}

func TestBuild_Remote(t *testing.T) {
	srv, _ := mirror(t, map[string]string{
		"/lib":     "export { v } from './dep.mjs'",
		"/dep.mjs": "export const v = 'remote-value'",
	})
	s := newSession(t, Options{Resolver: resolver.Options{Mirror: srv.URL}})
	snap := snapshot(t, registry.VirtualFile{Path: "index.ts", Content: "import { v } from 'lib'\nconsole.log(v)", IsEntry: true})

	res := s.Build(context.Background(), snap, remote.RetryPolicy{MaxAttempts: 2})
	if res.Err != nil {
		t.Fatalf("Build() error: %v", res.Err)
	}
	if out := jsOutput(t, res); !strings.Contains(out, "remote-value") {
		t.Errorf("output does not inline the remote module:\n%s", out)
	}
	if sum := res.Meta.Summarize(); sum.Remote != 2 {
		t.Errorf("remote inputs = %d, want 2", sum.Remote)
	}
}

func TestBuild_RemoteExhausted(t *testing.T) {
	srv, hits := mirror(t, nil)
	s := newSession(t, Options{Resolver: resolver.Options{Mirror: srv.URL}})
	snap := snapshot(t, registry.VirtualFile{Path: "index.ts", Content: "import 'left-pad'", IsEntry: true})

	res := s.Build(context.Background(), snap, remote.RetryPolicy{MaxAttempts: 2})
	if res.Err == nil {
		t.Fatal("Build() succeeded although every fetch failed")
	}
	msg := res.Artifacts[0].Content
	if !strings.Contains(msg, "Failed to fetch") || !strings.Contains(msg, "after 2 attempts") {
		t.Errorf("error artifact = %q", msg)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("mirror hits = %d, want 2", got)
	}
}

func TestBuild_External(t *testing.T) {
	rec := &trace.Recorder{}
	s := newSession(t, Options{
		Resolver: resolver.Options{External: []string{"react"}},
		Tracer:   rec,
	})
	snap := snapshot(t, registry.VirtualFile{Path: "index.tsx", Content: "import { useState } from 'react'\nconsole.log(useState)", IsEntry: true})

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	if res.Err != nil {
		t.Fatalf("Build() error: %v", res.Err)
	}
	if out := jsOutput(t, res); !strings.Contains(out, `from "react"`) {
		t.Errorf("external import not preserved:\n%s", out)
	}
	if len(rec.Fetches()) != 0 {
		t.Error("external module was fetched")
	}
}

func TestBuild_CSSModule(t *testing.T) {
	s := newSession(t, Options{})
	snap := snapshot(t,
		registry.VirtualFile{Path: "index.ts", Content: "import styles from './app.module.css'\nconsole.log(styles.title)", IsEntry: true},
		registry.VirtualFile{Path: "app.module.css", Content: ".title { color: red }"},
	)

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	if res.Err != nil {
		t.Fatalf("Build() error: %v", res.Err)
	}
	var css bool
	for _, a := range res.Artifacts {
		if strings.HasSuffix(a.Filename, ".css") {
			css = true
		}
	}
	if !css {
		t.Errorf("no stylesheet artifact in %+v", res.Artifacts)
	}
}

func TestBuild_Splitting(t *testing.T) {
	s := newSession(t, Options{})
	snap := snapshot(t,
		registry.VirtualFile{Path: "index.ts", Content: "import('./lazy.ts').then(m => console.log(m.x))", IsEntry: true},
		registry.VirtualFile{Path: "lazy.ts", Content: "export const x = 'lazy'"},
	)

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	if res.Err != nil {
		t.Fatalf("Build() error: %v", res.Err)
	}
	if len(res.Artifacts) < 2 {
		t.Errorf("got %d artifacts, want a separate chunk for the dynamic import", len(res.Artifacts))
	}
}

func TestBuild_NoMetafile(t *testing.T) {
	opts := DefaultBuildOptions()
	opts.Metafile = false
	s := newSession(t, Options{Build: opts})
	snap := snapshot(t, registry.VirtualFile{Path: "index.js", Content: "console.log(1)", IsEntry: true})

	res := s.Build(context.Background(), snap, remote.RetryPolicy{})
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if res.Metadata != nil {
		t.Error("metadata artifact emitted with metafile disabled")
	}
}

func TestBuild_InProgress(t *testing.T) {
	s := newSession(t, Options{})
	s.building.Store(true)

	res := s.Build(context.Background(), snapshot(t, registry.VirtualFile{Path: "a.ts", IsEntry: true}), remote.RetryPolicy{})
	if !errors.Is(res.Err, ErrBuildInProgress) {
		t.Fatalf("Build() error = %v, want ErrBuildInProgress", res.Err)
	}
	if !s.building.Load() {
		t.Error("rejected Build released the guard of the active build")
	}
}

func TestBuild_GuardReleased(t *testing.T) {
	s := newSession(t, Options{})
	snap := snapshot(t, registry.VirtualFile{Path: "a.ts", Content: "1", IsEntry: true})
	for i := 0; i < 2; i++ {
		if res := s.Build(context.Background(), snap, remote.RetryPolicy{}); res.Err != nil {
			t.Fatalf("build %d: %v", i, res.Err)
		}
	}
}

func TestBuild_Cancelled(t *testing.T) {
	s := newSession(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.Build(ctx, snapshot(t, registry.VirtualFile{Path: "a.ts", Content: "1", IsEntry: true}), remote.RetryPolicy{})
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("Build() error = %v, want context.Canceled", res.Err)
	}
	if len(res.Artifacts) != 1 || res.Artifacts[0].Filename != ErrorFilename {
		t.Errorf("Artifacts = %+v", res.Artifacts)
	}
}

func TestBuild_InvalidPolicy(t *testing.T) {
	s := newSession(t, Options{})
	res := s.Build(context.Background(), snapshot(t, registry.VirtualFile{Path: "a.ts", IsEntry: true}), remote.RetryPolicy{MaxAttempts: -1})
	if res.Err == nil {
		t.Error("Build() accepted a negative retry count")
	}
}

func TestNewSession_InvalidOptions(t *testing.T) {
	tests := []BuildOptions{
		{Format: "amd"},
		{Platform: "deno"},
		{Target: "es3"},
		{Format: "cjs", Splitting: true},
	}
	for _, opts := range tests {
		if _, err := NewSession(Options{Build: opts}); err == nil {
			t.Errorf("NewSession(%+v) succeeded", opts)
		}
	}
}
