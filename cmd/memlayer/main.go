package main

import (
	"os"

	"github.com/memlayer/memlayer/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
