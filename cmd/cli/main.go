package main

import (
	"os"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/cli"
)

func main() {
	// Execute prints the error itself
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
