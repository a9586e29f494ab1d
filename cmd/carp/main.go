// Command carp inspects, migrates, invokes and replays versioned service
// requests.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/carp/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
