// Command ignite plans, rehearses and inspects contract deployments.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ignite/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
