// Command parallel runs, tests and inspects reconciliation scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/parallel/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
