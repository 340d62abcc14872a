package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/albertocavalcante/vfsbundle/internal/version"
)

// Command defines a single CLI entrypoint.
type Command struct {
	Name    string
	Summary string

	// Usage lines printed after the summary, such as "vfsbundle [flags] <dir>".
	Usage []string

	// Flags registers the command's flags. It may be nil.
	Flags func(fs *flag.FlagSet)

	// Run receives the positional arguments left after flag parsing.
	// Returning an ExitCodeError selects the exit code without printing
	// anything further.
	Run func(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

// ExitCodeError carries a process exit code out of Command.Run.
type ExitCodeError int

func (e ExitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", int(e))
}

// Execute runs the command and returns a process exit code.
func Execute(ctx context.Context, cmd Command, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version and exit")
	if cmd.Flags != nil {
		cmd.Flags(fs)
	}
	fs.Usage = func() {
		Writef(stderr, "%s\n\n", cmd.Summary)
		if len(cmd.Usage) == 0 {
			Writef(stderr, "Usage: %s [flags]\n", cmd.Name)
		}
		for i, u := range cmd.Usage {
			if i == 0 {
				Writef(stderr, "Usage: %s\n", u)
				continue
			}
			Writef(stderr, "       %s\n", u)
		}
		Writeln(stderr)
		Writeln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitOK
		}
		return ExitError
	}

	if *showVersion {
		Writef(stdout, "%s %s\n", cmd.Name, version.String())
		return ExitOK
	}

	if cmd.Run == nil {
		Writef(stderr, "%s: no command configured\n", cmd.Name)
		return ExitError
	}

	if err := cmd.Run(ctx, fs.Args(), stdout, stderr); err != nil {
		var code ExitCodeError
		if errors.As(err, &code) {
			return int(code)
		}
		Writef(stderr, "%s: %v\n", cmd.Name, err)
		return ExitError
	}
	return ExitOK
}
