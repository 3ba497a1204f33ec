package main

import (
	"errors"
	"fmt"
	"os"

	"nexus-catalog/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		if !errors.Is(err, commands.ErrUnsuccessful) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
