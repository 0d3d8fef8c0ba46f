package main

import (
	"os"

	"github.com/fleetworks/punchd/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
