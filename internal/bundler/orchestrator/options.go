package orchestrator

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// DefaultOutdir is the virtual output directory artifacts are named under.
const DefaultOutdir = "dist"

// BuildOptions are the esbuild settings a Session applies to every build.
type BuildOptions struct {
	Outdir    string
	Format    string // esm, cjs or iife
	Platform  string // browser, node or neutral
	Target    string // esnext or es2015 through es2022
	Splitting bool
	Metafile  bool
	Minify    bool
	Sourcemap bool
}

// DefaultBuildOptions bundles to split ESM with a metafile.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Outdir:    DefaultOutdir,
		Format:    "esm",
		Platform:  "browser",
		Target:    "esnext",
		Splitting: true,
		Metafile:  true,
	}
}

var formats = map[string]api.Format{
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
	"iife": api.FormatIIFE,
}

var platforms = map[string]api.Platform{
	"browser": api.PlatformBrowser,
	"node":    api.PlatformNode,
	"neutral": api.PlatformNeutral,
}

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

// Validate reports unknown option values. Empty values take defaults.
func (o BuildOptions) Validate() error {
	_, err := o.esbuild()
	return err
}

func (o BuildOptions) esbuild() (api.BuildOptions, error) {
	d := DefaultBuildOptions()
	outdir := o.Outdir
	if outdir == "" {
		outdir = d.Outdir
	}

	format, err := lookup("format", o.Format, d.Format, formats)
	if err != nil {
		return api.BuildOptions{}, err
	}
	platform, err := lookup("platform", o.Platform, d.Platform, platforms)
	if err != nil {
		return api.BuildOptions{}, err
	}
	target, err := lookup("target", o.Target, d.Target, targets)
	if err != nil {
		return api.BuildOptions{}, err
	}
	if o.Splitting && format != api.FormatESModule {
		return api.BuildOptions{}, fmt.Errorf("splitting requires esm format, got %s", o.Format)
	}

	opts := api.BuildOptions{
		Bundle:            true,
		Write:             false,
		Outdir:            outdir,
		Format:            format,
		Platform:          platform,
		Target:            target,
		Splitting:         o.Splitting,
		Metafile:          o.Metafile,
		MinifyWhitespace:  o.Minify,
		MinifyIdentifiers: o.Minify,
		MinifySyntax:      o.Minify,
		LogLevel:          api.LogLevelSilent,
	}
	if o.Sourcemap {
		opts.Sourcemap = api.SourceMapExternal
	}
	return opts, nil
}

func lookup[T any](name, value, fallback string, table map[string]T) (T, error) {
	if value == "" {
		value = fallback
	}
	v, ok := table[strings.ToLower(value)]
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s %q", name, value)
	}
	return v, nil
}
