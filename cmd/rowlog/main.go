// Command rowlog manages change capture for a SQLite database: it creates
// catalog tables, flips capture toggles, applies captured writes, reads the
// operation log and runs capture scenarios.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rowlog/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
