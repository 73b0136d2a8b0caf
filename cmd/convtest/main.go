// Command convtest runs conversational agent acceptance tests.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/convtest/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
