// Package trace provides the observability hook invoked at the resolve, load,
// fetch and end boundaries of a build.
//
// A Tracer must be safe for concurrent use: the bundler calls its hooks from
// several goroutines at once.
package trace

import (
	"sync"
	"time"
)

// ResolveEvent describes one routing decision.
type ResolveEvent struct {
	Specifier string
	Importer  string
	Kind      string
	Path      string
	Namespace string
	Err       error
}

// LoadEvent describes one module load.
type LoadEvent struct {
	Path      string
	Namespace string
	Loader    string
	Bytes     int
	Duration  time.Duration
	Err       error
}

// FetchEvent describes one HTTP attempt made by the remote fetcher.
type FetchEvent struct {
	URL         string
	Attempt     int
	MaxAttempts int
	Status      int
	Cached      bool
	Duration    time.Duration
	Err         error
}

// EndEvent summarizes a finished build.
type EndEvent struct {
	Outputs  int
	Errors   int
	Warnings int
	Duration time.Duration
	Err      error
}

// Tracer receives build events.
type Tracer interface {
	Resolve(ResolveEvent)
	Load(LoadEvent)
	Fetch(FetchEvent)
	End(EndEvent)
}

type nop struct{}

func (nop) Resolve(ResolveEvent) {}
func (nop) Load(LoadEvent)       {}
func (nop) Fetch(FetchEvent)     {}
func (nop) End(EndEvent)         {}

// Nop returns a Tracer that discards every event.
func Nop() Tracer { return nop{} }

// OrNop returns t, or Nop when t is nil.
func OrNop(t Tracer) Tracer {
	if t == nil {
		return Nop()
	}
	return t
}

type multi []Tracer

// Multi fans events out to every non-nil tracer in order.
func Multi(tracers ...Tracer) Tracer {
	var m multi
	for _, t := range tracers {
		if t != nil {
			m = append(m, t)
		}
	}
	switch len(m) {
	case 0:
		return Nop()
	case 1:
		return m[0]
	}
	return m
}

func (m multi) Resolve(e ResolveEvent) {
	for _, t := range m {
		t.Resolve(e)
	}
}

func (m multi) Load(e LoadEvent) {
	for _, t := range m {
		t.Load(e)
	}
}

func (m multi) Fetch(e FetchEvent) {
	for _, t := range m {
		t.Fetch(e)
	}
}

func (m multi) End(e EndEvent) {
	for _, t := range m {
		t.End(e)
	}
}

// Recorder keeps every event in memory. It is meant for tests and for
// post-build reports.
type Recorder struct {
	mu       sync.Mutex
	resolves []ResolveEvent
	loads    []LoadEvent
	fetches  []FetchEvent
	ends     []EndEvent
}

func (r *Recorder) Resolve(e ResolveEvent) {
	r.mu.Lock()
	r.resolves = append(r.resolves, e)
	r.mu.Unlock()
}

func (r *Recorder) Load(e LoadEvent) {
	r.mu.Lock()
	r.loads = append(r.loads, e)
	r.mu.Unlock()
}

func (r *Recorder) Fetch(e FetchEvent) {
	r.mu.Lock()
	r.fetches = append(r.fetches, e)
	r.mu.Unlock()
}

func (r *Recorder) End(e EndEvent) {
	r.mu.Lock()
	r.ends = append(r.ends, e)
	r.mu.Unlock()
}

// Resolves returns a copy of the recorded resolve events.
func (r *Recorder) Resolves() []ResolveEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ResolveEvent(nil), r.resolves...)
}

// Loads returns a copy of the recorded load events.
func (r *Recorder) Loads() []LoadEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LoadEvent(nil), r.loads...)
}

// Fetches returns a copy of the recorded fetch events.
func (r *Recorder) Fetches() []FetchEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]FetchEvent(nil), r.fetches...)
}

// Ends returns a copy of the recorded end events.
func (r *Recorder) Ends() []EndEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EndEvent(nil), r.ends...)
}
