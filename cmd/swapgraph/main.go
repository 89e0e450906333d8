// Command swapgraph is the SwapGraph barter clearing CLI.
package main

import (
	"fmt"
	"os"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
