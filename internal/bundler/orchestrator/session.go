// Package orchestrator runs one esbuild build over a registry snapshot and
// turns the outcome into artifacts.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/hooks"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/remote"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/resolver"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/trace"
)

const (
	// MetaFilename names the metadata artifact.
	MetaFilename = "meta.json"
	// ErrorFilename names the single artifact of a failed build.
	ErrorFilename = "error.txt"
)

// Artifact is one output file.
type Artifact struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Result is the outcome of one build. A failed build has Err set and exactly
// one artifact, ErrorFilename, carrying the message.
type Result struct {
	Artifacts []Artifact
	Metadata  *Artifact
	Meta      *Metafile
	Warnings  []string
	Duration  time.Duration
	Err       error
}

// OK returns true if the build succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// All returns the artifacts followed by the metadata artifact, if any.
func (r Result) All() []Artifact {
	out := append([]Artifact(nil), r.Artifacts...)
	if r.Metadata != nil {
		out = append(out, *r.Metadata)
	}
	return out
}

func failed(err error, start time.Time) Result {
	return Result{
		Artifacts: []Artifact{{Filename: ErrorFilename, Content: err.Error()}},
		Duration:  time.Since(start),
		Err:       err,
	}
}

// Options configure a Session.
type Options struct {
	Resolver resolver.Options

	// Fetcher loads remote modules. Nil creates one with default options.
	// One Fetcher may serve several sessions; each build's cancellation and
	// RetryPolicy only apply to its own fetches.
	Fetcher *remote.Fetcher

	// Tracer observes every build. Nil disables tracing.
	Tracer trace.Tracer

	// Build holds the esbuild settings. The zero value means
	// DefaultBuildOptions.
	Build BuildOptions
}

// Session builds snapshots one at a time.
type Session struct {
	building atomic.Bool

	resolver *resolver.Resolver
	fetcher  *remote.Fetcher
	tracer   trace.Tracer
	build    BuildOptions
}

// NewSession validates opts and creates a Session.
func NewSession(opts Options) (*Session, error) {
	build := opts.Build
	if build == (BuildOptions{}) {
		build = DefaultBuildOptions()
	}
	if err := build.Validate(); err != nil {
		return nil, err
	}

	tracer := trace.OrNop(opts.Tracer)
	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = remote.NewFetcher(remote.Options{Tracer: tracer})
	}
	return &Session{
		resolver: resolver.New(opts.Resolver),
		fetcher:  fetcher,
		tracer:   tracer,
		build:    build,
	}, nil
}

// Build bundles snap from its unique entry file. Remote modules are fetched
// under policy. Build never panics on bad input; every failure is reported
// through Result.Err and the error artifact. Cancelling ctx cancels esbuild
// and any fetch still waiting on a retry.
func (s *Session) Build(ctx context.Context, snap *registry.Snapshot, policy remote.RetryPolicy) Result {
	start := time.Now()
	if !s.building.CompareAndSwap(false, true) {
		return s.abort(ErrBuildInProgress, start)
	}
	defer s.building.Store(false)

	return s.run(ctx, snap, policy, start)
}

// abort fails a build that never reached esbuild, so OnEnd will not report it.
func (s *Session) abort(err error, start time.Time) Result {
	res := failed(err, start)
	s.tracer.End(trace.EndEvent{Duration: res.Duration, Err: err})
	return res
}

func (s *Session) run(ctx context.Context, snap *registry.Snapshot, policy remote.RetryPolicy, start time.Time) Result {
	entries := snap.Entries()
	if len(entries) != 1 {
		paths := make([]string, len(entries))
		for i, f := range entries {
			paths[i] = f.Path
		}
		return s.abort(&EntryError{Paths: paths}, start)
	}
	if err := policy.Validate(); err != nil {
		return s.abort(err, start)
	}

	opts, err := s.build.esbuild()
	if err != nil {
		return s.abort(err, start)
	}
	plugin := &engine{
		resolver: s.resolver,
		fetcher:  s.fetcher,
		tracer:   s.tracer,
		snap:     snap,
		policy:   policy,
		start:    start,
	}
	opts.EntryPoints = []string{entries[0].Path}
	opts.Plugins = []api.Plugin{hooks.ESBuild(ctx, plugin)}

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		return s.abort(newBuildError(cerr.Errors), start)
	}
	defer bctx.Dispose()

	stop := context.AfterFunc(ctx, bctx.Cancel)
	out := bctx.Rebuild()
	stop()

	if err := ctx.Err(); err != nil {
		return failed(fmt.Errorf("build cancelled: %w", err), start)
	}
	if len(out.Errors) > 0 {
		return failed(newBuildError(out.Errors), start)
	}
	return s.collect(out, start)
}

func (s *Session) collect(out api.BuildResult, start time.Time) Result {
	res := Result{Artifacts: make([]Artifact, 0, len(out.OutputFiles))}
	for _, f := range out.OutputFiles {
		res.Artifacts = append(res.Artifacts, Artifact{
			Filename: path.Base(filepath.ToSlash(f.Path)),
			Content:  string(f.Contents),
		})
	}
	for _, w := range out.Warnings {
		res.Warnings = append(res.Warnings, formatMessage(w))
	}

	if s.build.Metafile && out.Metafile != "" {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(out.Metafile), "", "  "); err != nil {
			return failed(fmt.Errorf("metafile: %w", err), start)
		}
		res.Metadata = &Artifact{Filename: MetaFilename, Content: buf.String()}
		if meta, err := ParseMetafile(out.Metafile); err == nil {
			res.Meta = meta
		}
	}
	res.Duration = time.Since(start)
	return res
}
