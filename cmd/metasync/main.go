// Package main provides the CLI for the MetaSync catalog synchronization
// engine.
package main

import (
	"os"

	"github.com/metalayer-labs/metasync/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
