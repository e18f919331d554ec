// Package main is the entry point for the ansibot CLI.
package main

import (
	"os"

	"github.com/ansibot/ansibot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
