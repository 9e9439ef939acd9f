package main

import (
	"os"

	"github.com/runnerr0/visitrelay/internal/cli"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	// The parser prints its own errors.
	if err := cli.Run(Version); err != nil {
		os.Exit(1)
	}
}
