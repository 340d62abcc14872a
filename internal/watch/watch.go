// Package watch rebuilds a workspace when files in its directory change.
//
// Events are debounced: a burst of writes (an editor saving through a temp
// file, a git checkout) produces one callback carrying every changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/registry"
)

// DefaultDebounce is the quiet period used when Config.Debounce is unset.
const DefaultDebounce = 200 * time.Millisecond

// ErrStarted is returned when Run is called a second time.
var ErrStarted = errors.New("watch: Run called more than once")

// Op is what happened to a path.
type Op int

const (
	// Changed means the file was created or written.
	Changed Op = iota
	// Removed means the file was deleted or renamed away.
	Removed
)

func (op Op) String() string {
	if op == Removed {
		return "removed"
	}
	return "changed"
}

// Change is one debounced file event. Path is relative to the watched
// directory and slash-separated.
type Change struct {
	Path string
	Op   Op
}

// Config holds the parameters for a Watcher.
type Config struct {
	// Dir is the directory to watch recursively.
	Dir string

	// Matcher selects the files that trigger callbacks. Nil matches every
	// file outside registry.DefaultIgnores.
	Matcher *registry.Matcher

	// Debounce is the quiet period after the last event before OnChange
	// fires. Zero or negative means DefaultDebounce.
	Debounce time.Duration

	// OnChange receives the coalesced changes sorted by path. It is never
	// called concurrently with itself.
	OnChange func(ctx context.Context, changes []Change) error

	Logger *zap.Logger
}

// Watcher monitors a directory tree. Run must be called exactly once.
type Watcher struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	matcher  *registry.Matcher
	debounce time.Duration
	dir      string
	log      *zap.Logger
	started  atomic.Bool
}

// New creates a Watcher and registers every non-ignored directory under
// cfg.Dir.
func New(cfg Config) (*Watcher, error) {
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve directory: %w", err)
	}
	matcher := cfg.Matcher
	if matcher == nil {
		if matcher, err = registry.NewMatcher(nil, nil); err != nil {
			return nil, err
		}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		matcher:  matcher,
		debounce: debounce,
		dir:      dir,
		log:      log.Named("watch"),
	}
	if err := w.addTree(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled. It returns nil on
// cancellation and an error if the underlying watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrStarted
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]Op)
		timer   *time.Timer
		running atomic.Bool
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !running.CompareAndSwap(false, true) {
			// Busy: try again once the current callback has had time to finish.
			mu.Lock()
			timer.Reset(w.debounce)
			mu.Unlock()
			return
		}
		defer running.Store(false)

		mu.Lock()
		changes := make([]Change, 0, len(pending))
		for p, op := range pending {
			changes = append(changes, Change{Path: p, Op: op})
		}
		clear(pending)
		mu.Unlock()

		if len(changes) == 0 || w.cfg.OnChange == nil {
			return
		}
		sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
		if err := w.cfg.OnChange(ctx, changes); err != nil {
			w.log.Warn("rebuild failed", zap.Error(err))
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.log.Warn("close watcher", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			change, ok := w.classify(evt)
			if !ok {
				continue
			}
			w.log.Debug("event", zap.String("path", change.Path), zap.Stringer("op", change.Op))

			mu.Lock()
			pending[change.Path] = change.Op
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("events dropped", zap.Error(err))
				continue
			}
			return fmt.Errorf("watch: %w", err)
		}
	}
}

// classify turns an fsnotify event into a Change. New directories are added
// to the watch list and produce no change of their own.
func (w *Watcher) classify(evt fsnotify.Event) (Change, bool) {
	rel, err := filepath.Rel(w.dir, evt.Name)
	if err != nil || rel == "." {
		return Change{}, false
	}
	rel = filepath.ToSlash(rel)

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if !w.matcher.Ignored(rel) {
				if err := w.addTree(evt.Name); err != nil {
					w.log.Warn("add directory", zap.String("path", rel), zap.Error(err))
				}
			}
			return Change{}, false
		}
	}
	if !w.matcher.Match(rel) {
		return Change{}, false
	}

	switch {
	case evt.Has(fsnotify.Remove), evt.Has(fsnotify.Rename):
		return Change{Path: rel, Op: Removed}, true
	case evt.Has(fsnotify.Create), evt.Has(fsnotify.Write):
		return Change{Path: rel, Op: Changed}, true
	}
	return Change{}, false
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Debug("skip inaccessible path", zap.String("path", p), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.dir, p)
		if err != nil {
			return nil
		}
		if rel != "." && w.matcher.Ignored(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			return fmt.Errorf("watch: add %s: %w", p, err)
		}
		return nil
	})
}

// Apply folds changes into ws by reading changed files from dir. A changed
// path that no longer exists is treated as removed.
func Apply(ws *registry.Workspace, dir string, changes []Change) error {
	for _, c := range changes {
		if c.Op == Removed {
			ws.Delete(c.Path)
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(c.Path)))
		if errors.Is(err, fs.ErrNotExist) {
			ws.Delete(c.Path)
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", c.Path, err)
		}
		ws.Add(c.Path, string(data))
	}
	return nil
}
