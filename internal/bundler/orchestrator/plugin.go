package orchestrator

import (
	"context"
	"time"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/hooks"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/remote"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/resolver"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/trace"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/vloader"
)

// PluginName is reported by esbuild next to diagnostics raised by the engine.
const PluginName = "virtual-file-system"

// pluginData travels from OnResolve to OnLoad of the same module.
type pluginData struct {
	loader loaderkind.Tag
}

// engine is the hooks.Plugin for one build: one snapshot, one policy.
type engine struct {
	resolver *resolver.Resolver
	fetcher  *remote.Fetcher
	tracer   trace.Tracer
	snap     *registry.Snapshot
	policy   remote.RetryPolicy
	start    time.Time
}

var _ hooks.Plugin = (*engine)(nil)

func (e *engine) Name() string { return PluginName }

func (e *engine) OnResolve(args hooks.ResolveArgs) (hooks.ResolveResult, error) {
	res := e.resolver.Resolve(args.Path, args.Importer, args.Kind, e.snap)
	e.tracer.Resolve(trace.ResolveEvent{
		Specifier: args.Path,
		Importer:  args.Importer,
		Kind:      string(args.Kind),
		Path:      res.Path,
		Namespace: res.Namespace.String(),
		Err:       res.Err,
	})

	if res.Err != nil {
		return hooks.ResolveResult{Errors: hooks.Errorf(res.Err.Error())}, nil
	}
	if res.Namespace == resolver.NamespaceExternal {
		return hooks.ResolveResult{Path: res.Path, External: true}, nil
	}
	return hooks.ResolveResult{
		Path:       res.Path,
		Namespace:  res.Namespace,
		PluginData: pluginData{loader: res.Loader},
	}, nil
}

func (e *engine) OnLoad(ctx context.Context, args hooks.LoadArgs) (hooks.LoadResult, error) {
	start := time.Now()
	var (
		res hooks.LoadResult
		err error
	)
	switch args.Namespace {
	case resolver.NamespaceRemote:
		res, err = e.loadRemote(ctx, args.Path)
	default:
		res, err = e.loadVirtual(args)
	}
	e.tracer.Load(trace.LoadEvent{
		Path:      args.Path,
		Namespace: args.Namespace.String(),
		Loader:    res.Loader.String(),
		Bytes:     len(res.Contents),
		Duration:  time.Since(start),
		Err:       err,
	})
	if err != nil {
		return hooks.LoadResult{Errors: hooks.Errorf(err.Error())}, nil
	}
	return res, nil
}

func (e *engine) loadVirtual(args hooks.LoadArgs) (hooks.LoadResult, error) {
	var hint loaderkind.Tag
	if data, ok := args.PluginData.(pluginData); ok {
		hint = data.loader
	}
	c, nf := vloader.Load(args.Path, hint, e.snap)
	if nf != nil {
		return hooks.LoadResult{}, notFound{nf}
	}
	return hooks.LoadResult{Contents: c.Contents, Loader: c.Loader}, nil
}

func (e *engine) loadRemote(ctx context.Context, url string) (hooks.LoadResult, error) {
	c, err := e.fetcher.FetchWithRetry(ctx, url, e.policy)
	if err != nil {
		return hooks.LoadResult{}, err
	}
	return hooks.LoadResult{Contents: c.Body, Loader: c.Loader}, nil
}

func (e *engine) OnEnd(res hooks.EndResult) {
	e.tracer.End(trace.EndEvent{
		Outputs:  res.Outputs,
		Errors:   len(res.Errors),
		Warnings: len(res.Warnings),
		Duration: time.Since(e.start),
	})
}

type notFound struct{ nf *vloader.NotFound }

func (n notFound) Error() string { return n.nf.Message() }
