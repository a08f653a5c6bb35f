package main

import (
	"os"

	"github.com/tuannm99/novapage/cmd/novapage/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
