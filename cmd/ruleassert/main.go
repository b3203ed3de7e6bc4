// Command ruleassert runs rule base scenarios, validates rule sources and
// prints session journals.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/ruleassert/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
