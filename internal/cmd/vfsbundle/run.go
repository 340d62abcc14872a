// Package vfsbundle implements the vfsbundle command: it loads a file tree
// into memory, bundles it with esbuild, and prints or writes the artifacts.
package vfsbundle

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/albertocavalcante/vfsbundle/internal/bundleconfig"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/canon"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/orchestrator"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/remote"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/trace"
	"github.com/albertocavalcante/vfsbundle/internal/cli"
	"github.com/albertocavalcante/vfsbundle/internal/version"
	"github.com/albertocavalcante/vfsbundle/internal/watch"
)

// Run executes vfsbundle with the given arguments.
// Returns exit code.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunWithIO(ctx, args, os.Stdin, os.Stdout, os.Stderr)
}

// RunWithIO allows custom IO for embedding/testing.
func RunWithIO(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var o options
	cmd := cli.Command{
		Name:    "vfsbundle",
		Summary: "Bundle a file tree in memory with esbuild. Bare imports are fetched from a CDN mirror.",
		Usage: []string{
			"vfsbundle [flags] [dir]",
			"vfsbundle [flags] <files.txtar>",
			"vfsbundle [flags] <registry.json|->",
		},
		Flags: o.register,
		Run: func(ctx context.Context, args []string, stdout, stderr io.Writer) error {
			return run(ctx, &o, args, stdin, stdout, stderr)
		},
	}
	return cli.Execute(ctx, cmd, args, stdout, stderr)
}

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

type options struct {
	fs *flag.FlagSet

	configPath    string
	entry         string
	out           string
	jsonOut       bool
	check         bool
	watch         bool
	mirror        string
	retries       int
	retryInterval time.Duration
	external      stringList
	minify        bool
	noMetafile    bool
	verbose       bool
}

func (o *options) register(fs *flag.FlagSet) {
	o.fs = fs
	fs.StringVar(&o.configPath, "config", "", "config file (default: discover bundle.star or bundle.toml)")
	fs.StringVar(&o.entry, "entry", "", "entry file, relative to the source")
	fs.StringVar(&o.out, "out", "", "write artifacts to this directory instead of stdout")
	fs.BoolVar(&o.jsonOut, "json", false, "print the build result as JSON")
	fs.BoolVar(&o.check, "check", false, "compare a fresh build with -out and exit 2 on drift")
	fs.BoolVar(&o.watch, "watch", false, "rebuild when files in the source directory change")
	fs.StringVar(&o.mirror, "mirror", "", "registry mirror for bare imports")
	fs.IntVar(&o.retries, "retries", 0, "total attempts per remote module")
	fs.DurationVar(&o.retryInterval, "retry-interval", 0, "wait between remote attempts")
	fs.Var(&o.external, "external", "leave a bare import unbundled (repeatable, supports a trailing *)")
	fs.BoolVar(&o.minify, "minify", false, "minify output")
	fs.BoolVar(&o.noMetafile, "no-metafile", false, "omit meta.json")
	fs.BoolVar(&o.verbose, "v", false, "log every resolve, load and fetch")
}

// set reports which flags were given on the command line.
func (o *options) set() map[string]bool {
	seen := map[string]bool{}
	if o.fs != nil {
		o.fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	}
	return seen
}

func (o *options) validate(src string) error {
	if len(o.fs.Args()) > 1 {
		return fmt.Errorf("expected at most one source, got %d", len(o.fs.Args()))
	}
	if o.check && o.out == "" {
		return errors.New("-check requires -out")
	}
	if o.check && o.watch {
		return errors.New("-check and -watch cannot be combined")
	}
	if o.watch && !isDir(src) {
		return fmt.Errorf("-watch needs a directory source, got %s", src)
	}
	return nil
}

// apply overrides config values with the flags that were set.
func (o *options) apply(cfg *bundleconfig.Config) {
	set := o.set()
	if o.entry != "" {
		cfg.Build.Entry = o.entry
	}
	if o.mirror != "" {
		cfg.Remote.Mirror = o.mirror
	}
	if set["retries"] {
		retries := o.retries
		cfg.Remote.MaxAttempts = &retries
	}
	if set["retry-interval"] {
		cfg.Remote.Interval = &bundleconfig.Duration{Duration: o.retryInterval}
	}
	cfg.Build.External = append(cfg.Build.External, o.external...)
	if o.minify {
		cfg.Build.Minify = true
	}
	if o.noMetafile {
		off := false
		cfg.Build.Metafile = &off
	}
	if o.verbose {
		cfg.Log.Level = "debug"
	}
}

func run(ctx context.Context, o *options, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	src := "."
	if len(args) > 0 {
		src = args[0]
	}
	if err := o.validate(src); err != nil {
		return err
	}

	cfg, cfgPath, err := loadConfig(o.configPath, src)
	if err != nil {
		return err
	}
	o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := cli.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if cfgPath != "" {
		log.Debug("config loaded", zap.String("path", cfgPath))
	}

	var cache *remote.Cache
	if cfg.Remote.Cache || o.watch {
		cache = remote.NewCache()
	}
	tracer := trace.NewZap(log)
	session, err := orchestrator.NewSession(orchestrator.Options{
		Resolver: cfg.ResolverOptions(),
		Fetcher: remote.NewFetcher(remote.Options{
			Client:    &http.Client{Timeout: cfg.Remote.Timeout.Duration},
			Cache:     cache,
			Tracer:    tracer,
			UserAgent: version.UserAgent(),
		}),
		Tracer: tracer,
		Build:  cfg.BuildOptions(),
	})
	if err != nil {
		return err
	}

	s, err := openSource(src, stdin, cfg)
	if err != nil {
		return err
	}

	b := &builder{
		opts:    o,
		session: session,
		policy:  cfg.RetryPolicy(),
		log:     log,
		stdout:  stdout,
		stderr:  stderr,
	}
	code, err := b.build(ctx, s)
	if err != nil {
		return err
	}
	if !o.watch {
		if code != cli.ExitOK {
			return cli.ExitCodeError(code)
		}
		return nil
	}

	matcher, err := registry.NewMatcher(cfg.Files.Include, cfg.Files.Ignore)
	if err != nil {
		return err
	}
	w, err := watch.New(watch.Config{
		Dir:     src,
		Matcher: matcher,
		Logger:  log,
		OnChange: func(ctx context.Context, changes []watch.Change) error {
			if err := watch.Apply(s.ws, s.dir, changes); err != nil {
				return err
			}
			log.Info("rebuilding", zap.Int("changes", len(changes)))
			_, err := b.build(ctx, s)
			return err
		},
	})
	if err != nil {
		return err
	}
	log.Info("watching", zap.String("dir", src))
	return w.Run(ctx)
}

func loadConfig(path, src string) (*bundleconfig.Config, string, error) {
	if path != "" {
		cfg, err := bundleconfig.LoadConfig(path)
		return cfg, path, err
	}
	start := ""
	switch {
	case src == "-":
	case isDir(src):
		start = src
	default:
		start = filepath.Dir(src)
	}
	return bundleconfig.DiscoverConfig(start)
}

// source is the file tree a build reads. Directory and txtar sources are
// editable workspaces; registry JSON is a fixed snapshot.
type source struct {
	ws   *registry.Workspace
	snap *registry.Snapshot
	dir  string
}

func (s *source) snapshot() (*registry.Snapshot, error) {
	if s.ws != nil {
		return s.ws.Snapshot()
	}
	return s.snap, nil
}

func openSource(src string, stdin io.Reader, cfg *bundleconfig.Config) (*source, error) {
	entry := cfg.Build.Entry
	switch {
	case src == "-":
		snap, err := registry.ReadJSON(stdin)
		if err != nil {
			return nil, err
		}
		return snapshotSource(snap, entry)

	case isDir(src):
		ws, err := registry.LoadDir(src, cfg.DirOptions())
		if err != nil {
			return nil, err
		}
		return &source{ws: ws, dir: src}, nil

	case strings.HasSuffix(src, ".txtar"):
		ws, err := registry.LoadTxtar(src)
		if err != nil {
			return nil, err
		}
		if entry != "" {
			if err := ws.SetEntry(entry); err != nil {
				return nil, err
			}
		}
		return &source{ws: ws}, nil

	case strings.HasSuffix(src, ".json"):
		snap, err := registry.LoadJSON(src)
		if err != nil {
			return nil, err
		}
		return snapshotSource(snap, entry)
	}

	if _, err := os.Stat(src); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("unsupported source %s (expected a directory, .txtar or .json)", src)
}

// snapshotSource moves the entry flag of snap to entry when one is named.
func snapshotSource(snap *registry.Snapshot, entry string) (*source, error) {
	if entry == "" {
		return &source{snap: snap}, nil
	}
	key := canon.Normalize(entry)
	if !snap.Has(key) {
		return nil, fmt.Errorf("entry %q not found in registry", entry)
	}
	files := snap.Files()
	for i := range files {
		files[i].IsEntry = files[i].Canonical() == key
	}
	moved, err := registry.New(files...)
	if err != nil {
		return nil, err
	}
	return &source{snap: moved}, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
