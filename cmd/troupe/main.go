package main

import (
	"os"

	"github.com/stxkxs/troupe/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
