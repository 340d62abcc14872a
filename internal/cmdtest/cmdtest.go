// Package cmdtest provides a testscript-based test harness for vfsbundle.
//
// Each txtar file is a script followed by the files it runs against:
//
//	# A relative import is bundled into the entry
//	exec vfsbundle -no-metafile .
//	stdout '// index.js'
//	stdout 'hello'
//
//	-- index.ts --
//	import { msg } from "./msg.ts";
//	console.log(msg);
//	-- msg.ts --
//	export const msg = "hello";
package cmdtest

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/albertocavalcante/vfsbundle/internal/bundleconfig"
	"github.com/albertocavalcante/vfsbundle/internal/cmd/vfsbundle"
)

// Run executes the testscript tests in the given directory.
func Run(t *testing.T, dir string) {
	testscript.Run(t, testscript.Params{
		Dir: dir,
		Setup: func(env *testscript.Env) error {
			// A config named by the developer's environment must not leak in.
			env.Setenv(bundleconfig.EnvConfig, "")
			return nil
		},
	})
}

// Main is the TestMain function that should be called from test files.
// It registers vfsbundle as a testscript command.
func Main(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"vfsbundle": wrapRun(vfsbundle.Run),
	}))
}

// wrapRun wraps a Run(args []string) int function to func() int for testscript.
// The args are taken from os.Args[1:].
func wrapRun(run func(args []string) int) func() int {
	return func() int {
		return run(os.Args[1:])
	}
}
