// Command wisp is the client entry point: manifest, resolver, linker
// and registry-publish operations exposed as a cobra command tree.
package main

import (
	"fmt"
	"os"

	"github.com/wisp-pm/wisp/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
