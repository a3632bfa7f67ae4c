package main

import (
	"os"

	"github.com/frhnm/tgfleet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
