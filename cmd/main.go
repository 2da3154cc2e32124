package main

import (
	"os"

	"github.com/tesserachain/tessera/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
