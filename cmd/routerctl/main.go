// Command routerctl decodes universal router command streams and simulates
// scenarios against an in-memory ledger.
package main

import (
	"fmt"
	"os"

	"github.com/branched-services/go-router/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "routerctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
