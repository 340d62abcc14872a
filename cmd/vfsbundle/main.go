// Command vfsbundle bundles a file tree in memory with esbuild.
package main

import (
	"os"

	"github.com/albertocavalcante/vfsbundle/internal/cmd/vfsbundle"
)

func main() {
	os.Exit(vfsbundle.Run(os.Args[1:]))
}
