package main

import (
	"os"

	"github.com/readingbuddy/dbal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
