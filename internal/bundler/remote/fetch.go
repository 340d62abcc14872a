// Package remote fetches modules from the remote registry mirror.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/loaderkind"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/trace"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 30 * time.Second

// ErrExhausted is returned when every attempt allowed by a RetryPolicy failed.
var ErrExhausted = errors.New("remote fetch exhausted")

// RetryPolicy controls how often a fetch is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts. Zero or one means a single
	// try with no retry.
	MaxAttempts int

	// Interval is the wait between two attempts.
	Interval time.Duration
}

// Attempts returns the effective number of attempts.
func (p RetryPolicy) Attempts() int {
	return max(1, p.MaxAttempts)
}

// Validate rejects negative values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be >= 0, got %d", p.MaxAttempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("retry interval must be >= 0, got %s", p.Interval)
	}
	return nil
}

// ExhaustedError reports a URL that could not be fetched within the policy.
type ExhaustedError struct {
	URL      string
	Attempts int

	// LastStatus is the HTTP status of the final attempt, or 0 when it
	// failed at the transport level.
	LastStatus int

	// Last is the transport error of the final attempt, if any.
	Last error
}

func (e *ExhaustedError) Error() string {
	reason := fmt.Sprintf("status %d %s", e.LastStatus, http.StatusText(e.LastStatus))
	if e.Last != nil {
		reason = e.Last.Error()
	}
	noun := "attempts"
	if e.Attempts == 1 {
		noun = "attempt"
	}
	return fmt.Sprintf("Failed to fetch %s after %d %s: %s", e.URL, e.Attempts, noun, reason)
}

// Is makes errors.Is(err, ErrExhausted) match.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Content is a fetched module.
type Content struct {
	URL      string
	Body     string
	Loader   loaderkind.Tag
	Status   int
	Attempts int
}

// Options configure a Fetcher.
type Options struct {
	// Client performs the requests. Nil uses a client with DefaultTimeout.
	Client *http.Client

	// Cache keeps successful bodies across builds. Nil disables caching.
	Cache *Cache

	// Tracer receives one event per attempt.
	Tracer trace.Tracer

	// UserAgent is sent with every request when set.
	UserAgent string
}

// Fetcher performs retrying GETs. Concurrent fetches of the same URL with
// the same RetryPolicy share a single request, which keeps running while at
// least one caller still waits for it. A Fetcher is safe to share between
// sessions.
type Fetcher struct {
	client    *http.Client
	cache     *Cache
	tracer    trace.Tracer
	userAgent string
	group     singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight

	// wait blocks between attempts; replaced in tests.
	wait func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{
		client:    client,
		cache:     opts.Cache,
		tracer:    trace.OrNop(opts.Tracer),
		userAgent: opts.UserAgent,
		flights:   map[string]*flight{},
		wait:      sleep,
	}
}

// flight is the context shared by the callers of one in-progress fetch.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func flightKey(rawURL string, policy RetryPolicy) string {
	return fmt.Sprintf("%s\x00%d\x00%s", rawURL, policy.Attempts(), policy.Interval)
}

// join registers a caller of key and returns the context the shared fetch
// runs under. It keeps ctx's values but not its cancellation.
func (f *Fetcher) join(ctx context.Context, key string) context.Context {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{ctx: fctx, cancel: cancel}
		f.flights[key] = fl
	}
	fl.waiters++
	return fl.ctx
}

// leave drops a caller of key. The last one out cancels the shared fetch
// and makes later callers start a new one.
func (f *Fetcher) leave(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl := f.flights[key]
	fl.waiters--
	if fl.waiters > 0 {
		return
	}
	fl.cancel()
	f.group.Forget(key)
	delete(f.flights, key)
}

// FetchWithRetry fetches rawURL, retrying non-2xx responses and transport
// errors up to policy.Attempts() times with policy.Interval between attempts.
// It fails with *ExhaustedError when no attempt succeeds and with the context
// error when ctx is done first.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string, policy RetryPolicy) (Content, error) {
	if err := policy.Validate(); err != nil {
		return Content{}, err
	}
	if c, ok := f.cache.Get(rawURL); ok {
		f.tracer.Fetch(trace.FetchEvent{URL: rawURL, Status: c.Status, Cached: true})
		return c, nil
	}

	key := flightKey(rawURL, policy)
	fctx := f.join(ctx, key)
	defer f.leave(key)

	ch := f.group.DoChan(key, func() (any, error) {
		return f.fetch(fctx, rawURL, policy)
	})
	select {
	case <-ctx.Done():
		return Content{}, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return Content{}, res.Err
		}
		return res.Val.(Content), nil
	}
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string, policy RetryPolicy) (Content, error) {
	attempts := policy.Attempts()
	exhausted := &ExhaustedError{URL: rawURL}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Content{}, fmt.Errorf("fetch %s: %w", rawURL, err)
		}

		start := time.Now()
		c, status, err := f.get(ctx, rawURL)
		f.tracer.Fetch(trace.FetchEvent{
			URL:         rawURL,
			Attempt:     attempt,
			MaxAttempts: attempts,
			Status:      status,
			Duration:    time.Since(start),
			Err:         attemptErr(status, err),
		})

		if err == nil && status/100 == 2 {
			c.Attempts = attempt
			f.cache.Put(c)
			return c, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Content{}, fmt.Errorf("fetch %s: %w", rawURL, ctxErr)
		}

		exhausted.Attempts = attempt
		exhausted.LastStatus = status
		exhausted.Last = err

		if attempt < attempts {
			if err := f.wait(ctx, policy.Interval); err != nil {
				return Content{}, fmt.Errorf("fetch %s: %w", rawURL, err)
			}
		}
	}
	return Content{}, exhausted
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (Content, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Content{}, 0, fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Content{}, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Content{}, resp.StatusCode, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Content{}, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return Content{
		URL:    rawURL,
		Body:   string(body),
		Loader: LoaderFor(rawURL, resp.Header.Get("Content-Type")),
		Status: resp.StatusCode,
	}, resp.StatusCode, nil
}

func attemptErr(status int, err error) error {
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return fmt.Errorf("status %d", status)
	}
	return nil
}

// LoaderFor picks the loader of a fetched module. Stylesheets and JSON are
// recognized by content type; everything else is classified by the URL path
// and defaults to js.
func LoaderFor(rawURL, contentType string) loaderkind.Tag {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mt {
		case "text/css":
			return loaderkind.TagCSS
		case "application/json":
			return loaderkind.TagJSON
		}
	}
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return loaderkind.Classify(p)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
