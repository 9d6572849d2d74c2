package main

import (
	"fmt"
	"os"

	"github.com/loykin/rtctl/internal/supervisor"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// the detached launch re-executes this binary as an intermediate stage
	supervisor.RunLaunchStageIfRequested()

	root := buildRoot(newCommand(os.Stdout))
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
