// Package bundleconfig loads vfsbundle configuration.
//
// Two formats are supported:
//   - bundle.star: Starlark; the file defines configure() returning a dict
//   - bundle.toml: declarative TOML
//
// Discovery walks up from the project directory to the enclosing git root.
// The VFSBUNDLE_CONFIG environment variable or the -config flag names a file
// explicitly.
package bundleconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/orchestrator"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/remote"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/resolver"
)

// Config file names in priority order.
const (
	ConfigStar = "bundle.star"
	ConfigTOML = "bundle.toml"
)

// Retry defaults used when the config leaves them unset.
const (
	DefaultMaxAttempts = 3
	DefaultInterval    = 500 * time.Millisecond
)

// EnvConfig is the environment variable naming an explicit config file.
const EnvConfig = "VFSBUNDLE_CONFIG"

// ErrConflict is returned when more than one config file exists in a directory.
var ErrConflict = errors.New("multiple config files found in the same directory; use only one")

// Config is the complete vfsbundle configuration.
type Config struct {
	Build  BuildConfig  `json:"build" toml:"build"`
	Remote RemoteConfig `json:"remote" toml:"remote"`
	Files  FilesConfig  `json:"files" toml:"files"`
	Log    LogConfig    `json:"log" toml:"log"`
}

// BuildConfig holds the esbuild settings.
type BuildConfig struct {
	// Entry names the entry file relative to the project directory.
	Entry string `json:"entry" toml:"entry"`

	// Outdir is the output directory artifacts are written to.
	Outdir string `json:"outdir" toml:"outdir"`

	Format   string `json:"format" toml:"format"`
	Platform string `json:"platform" toml:"platform"`
	Target   string `json:"target" toml:"target"`

	// Splitting and Metafile default to true; nil keeps the default.
	Splitting *bool `json:"splitting" toml:"splitting"`
	Metafile  *bool `json:"metafile" toml:"metafile"`

	Minify    bool `json:"minify" toml:"minify"`
	Sourcemap bool `json:"sourcemap" toml:"sourcemap"`

	// External lists bare specifiers left as imports ("react", "node:*").
	External []string `json:"external" toml:"external"`
}

// RemoteConfig controls how remote modules are fetched.
type RemoteConfig struct {
	// Mirror is the registry base URL bare specifiers are rewritten onto.
	Mirror string `json:"mirror" toml:"mirror"`

	// MaxAttempts is the total number of attempts per module. 0 and 1 both
	// mean a single try; nil keeps the default.
	MaxAttempts *int `json:"max_attempts" toml:"max_attempts"`

	// Interval is the wait between attempts. "0s" retries immediately; nil
	// keeps the default.
	Interval *Duration `json:"interval" toml:"interval"`

	// Timeout bounds one HTTP attempt.
	Timeout Duration `json:"timeout" toml:"timeout"`

	// Cache keeps fetched modules in memory between watch rebuilds.
	Cache bool `json:"cache" toml:"cache"`
}

// FilesConfig selects the project files loaded into the registry.
type FilesConfig struct {
	Include []string `json:"include" toml:"include"`
	Ignore  []string `json:"ignore" toml:"ignore"`
}

// LogConfig controls the command's logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level" toml:"level"`

	// Format is console or json.
	Format string `json:"format" toml:"format"`
}

// Duration wraps time.Duration for TOML/JSON string parsing.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText implements encoding.TextMarshaler for Duration.
func (d Duration) MarshalText() ([]byte, error) {
	if d.Duration == 0 {
		return nil, nil
	}
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	build := orchestrator.DefaultBuildOptions()
	return &Config{
		Build: BuildConfig{
			Outdir:   build.Outdir,
			Format:   build.Format,
			Platform: build.Platform,
			Target:   build.Target,
		},
		Remote: RemoteConfig{
			Mirror:      resolver.DefaultMirror,
			MaxAttempts: intPtr(DefaultMaxAttempts),
			Interval:    &Duration{DefaultInterval},
			Timeout:     Duration{remote.DefaultTimeout},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from path, picking the format by
// extension. Values not set in the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		cfg, err = LoadTOMLConfig(path)
	case ".star":
		cfg, err = LoadStarlarkConfig(path, DefaultStarlarkTimeout)
	default:
		return nil, fmt.Errorf("unsupported config file extension: %s (expected .star or .toml)", ext)
	}
	if err != nil {
		return nil, err
	}

	merged := DefaultConfig()
	merged.Merge(cfg)
	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return merged, nil
}

// DiscoverConfig searches for a configuration file.
//
// Resolution order:
//  1. the file named by VFSBUNDLE_CONFIG
//  2. bundle.star or bundle.toml in startDir or a parent, stopping at the
//     git root
//
// It returns the loaded config and its path, or (DefaultConfig(), "", nil)
// when nothing is found.
func DiscoverConfig(startDir string) (*Config, string, error) {
	if envPath := os.Getenv(EnvConfig); envPath != "" {
		cfg, err := LoadConfig(envPath)
		if err != nil {
			return nil, "", fmt.Errorf("loading config from %s: %w", EnvConfig, err)
		}
		return cfg, envPath, nil
	}

	if startDir == "" {
		var err error
		startDir, err = os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("getting working directory: %w", err)
		}
	}
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, "", fmt.Errorf("resolving path: %w", err)
	}

	gitRoot := findGitRoot(absDir)
	dir := absDir
	for {
		configPath, err := findConfigInDir(dir)
		if err != nil {
			return nil, "", err
		}
		if configPath != "" {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return nil, "", err
			}
			return cfg, configPath, nil
		}

		if gitRoot != "" && dir == gitRoot {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return DefaultConfig(), "", nil
}

func findConfigInDir(dir string) (string, error) {
	var found []string
	for _, name := range []string{ConfigStar, ConfigTOML} {
		if fileExists(filepath.Join(dir, name)) {
			found = append(found, name)
		}
	}
	switch len(found) {
	case 0:
		return "", nil
	case 1:
		return filepath.Join(dir, found[0]), nil
	}
	return "", fmt.Errorf("%w: found %s in %s", ErrConflict, strings.Join(found, ", "), dir)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func findGitRoot(startDir string) string {
	dir := startDir
	for {
		if fileExists(filepath.Join(dir, ".git")) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Merge merges other into c. Non-zero values from other override c, as do
// pointer fields other sets explicitly (even to zero); list values are
// appended.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	b, ob := &c.Build, other.Build
	if ob.Entry != "" {
		b.Entry = ob.Entry
	}
	if ob.Outdir != "" {
		b.Outdir = ob.Outdir
	}
	if ob.Format != "" {
		b.Format = ob.Format
	}
	if ob.Platform != "" {
		b.Platform = ob.Platform
	}
	if ob.Target != "" {
		b.Target = ob.Target
	}
	if ob.Splitting != nil {
		b.Splitting = ob.Splitting
	}
	if ob.Metafile != nil {
		b.Metafile = ob.Metafile
	}
	if ob.Minify {
		b.Minify = true
	}
	if ob.Sourcemap {
		b.Sourcemap = true
	}
	b.External = append(b.External, ob.External...)

	r, or := &c.Remote, other.Remote
	if or.Mirror != "" {
		r.Mirror = or.Mirror
	}
	if or.MaxAttempts != nil {
		r.MaxAttempts = or.MaxAttempts
	}
	if or.Interval != nil {
		r.Interval = or.Interval
	}
	if or.Timeout.Duration != 0 {
		r.Timeout = or.Timeout
	}
	if or.Cache {
		r.Cache = true
	}

	c.Files.Include = append(c.Files.Include, other.Files.Include...)
	c.Files.Ignore = append(c.Files.Ignore, other.Files.Ignore...)

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
	if other.Log.Format != "" {
		c.Log.Format = other.Log.Format
	}
}

// Validate checks values the engine would reject at build time.
func (c *Config) Validate() error {
	if err := c.BuildOptions().Validate(); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if c.Remote.Timeout.Duration < 0 {
		return fmt.Errorf("remote: timeout must be >= 0, got %s", c.Remote.Timeout)
	}
	if _, err := registry.NewMatcher(c.Files.Include, c.Files.Ignore); err != nil {
		return fmt.Errorf("files: %w", err)
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

// BuildOptions converts the build section for the orchestrator.
func (c *Config) BuildOptions() orchestrator.BuildOptions {
	return orchestrator.BuildOptions{
		Outdir:    c.Build.Outdir,
		Format:    c.Build.Format,
		Platform:  c.Build.Platform,
		Target:    c.Build.Target,
		Splitting: boolOr(c.Build.Splitting, true),
		Metafile:  boolOr(c.Build.Metafile, true),
		Minify:    c.Build.Minify,
		Sourcemap: c.Build.Sourcemap,
	}
}

// RetryPolicy converts the remote section for the fetcher.
func (c *Config) RetryPolicy() remote.RetryPolicy {
	return remote.RetryPolicy{
		MaxAttempts: intOr(c.Remote.MaxAttempts, DefaultMaxAttempts),
		Interval:    durationOr(c.Remote.Interval, DefaultInterval),
	}
}

// ResolverOptions converts the mirror and external settings.
func (c *Config) ResolverOptions() resolver.Options {
	return resolver.Options{
		Mirror:   c.Remote.Mirror,
		External: c.Build.External,
	}
}

// DirOptions converts the files section for a directory source.
func (c *Config) DirOptions() registry.DirOptions {
	return registry.DirOptions{
		Include: c.Files.Include,
		Ignore:  c.Files.Ignore,
		Entry:   c.Build.Entry,
	}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

func intOr(i *int, def int) int {
	if i == nil {
		return def
	}
	return *i
}

func durationOr(d *Duration, def time.Duration) time.Duration {
	if d == nil {
		return def
	}
	return d.Duration
}

func intPtr(i int) *int { return &i }
