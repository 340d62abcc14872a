package vfsbundle

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/albertocavalcante/vfsbundle/internal/bundler/orchestrator"
	"github.com/albertocavalcante/vfsbundle/internal/bundler/remote"
	"github.com/albertocavalcante/vfsbundle/internal/cli"
	"github.com/albertocavalcante/vfsbundle/internal/outdir"
)

// builder runs one build and reports it the way the flags ask for.
type builder struct {
	opts    *options
	session *orchestrator.Session
	policy  remote.RetryPolicy
	log     *zap.Logger
	stdout  io.Writer
	stderr  io.Writer
}

// build returns the exit code the result deserves. The error is reserved for
// failures of the command itself, such as an unwritable output directory.
func (b *builder) build(ctx context.Context, s *source) (int, error) {
	snap, err := s.snapshot()
	if err != nil {
		return cli.ExitError, err
	}
	res := b.session.Build(ctx, snap, b.policy)
	for _, w := range res.Warnings {
		b.log.Warn("esbuild warning", zap.String("message", w))
	}

	switch {
	case b.opts.check:
		return b.check(res)
	case b.opts.out != "":
		if err := outdir.Write(b.opts.out, res.All()); err != nil {
			return cli.ExitError, err
		}
		b.log.Info("artifacts written", zap.String("dir", b.opts.out), zap.Int("files", len(res.All())))
	case b.opts.jsonOut:
		if err := writeJSON(b.stdout, res); err != nil {
			return cli.ExitError, err
		}
	default:
		if res.OK() {
			writeText(b.stdout, res.All())
		}
	}

	if !res.OK() {
		if !b.opts.jsonOut {
			cli.Writef(b.stderr, "build failed:\n%s\n", res.Err)
		}
		return cli.ExitError, nil
	}
	return cli.ExitOK, nil
}

func (b *builder) check(res orchestrator.Result) (int, error) {
	if !res.OK() {
		cli.Writef(b.stderr, "build failed:\n%s\n", res.Err)
		return cli.ExitError, nil
	}
	report, err := outdir.Check(b.opts.out, res.All())
	if err != nil {
		return cli.ExitError, err
	}
	if report.Clean() {
		cli.Writef(b.stdout, "%s is up to date\n", b.opts.out)
		return cli.ExitOK, nil
	}
	cli.Write(b.stdout, report.String())
	cli.Writef(b.stderr, "%s is out of date: %d file(s) differ\n", b.opts.out, len(report.Drift))
	return cli.ExitWarning, nil
}

// writeText prints each artifact under a "// <filename>" header.
func writeText(w io.Writer, artifacts []orchestrator.Artifact) {
	for i, a := range artifacts {
		if i > 0 {
			cli.Writeln(w)
		}
		cli.Writef(w, "// %s\n", a.Filename)
		cli.Write(w, a.Content)
		if !strings.HasSuffix(a.Content, "\n") {
			cli.Writeln(w)
		}
	}
}

type jsonOutput struct {
	OK         bool                    `json:"ok"`
	Artifacts  []orchestrator.Artifact `json:"artifacts"`
	Warnings   []string                `json:"warnings,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Summary    *orchestrator.Summary   `json:"summary,omitempty"`
	DurationMS int64                   `json:"durationMs"`
}

func writeJSON(w io.Writer, res orchestrator.Result) error {
	out := jsonOutput{
		OK:         res.OK(),
		Artifacts:  res.All(),
		Warnings:   res.Warnings,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	if res.Meta != nil {
		summary := res.Meta.Summarize()
		out.Summary = &summary
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}
