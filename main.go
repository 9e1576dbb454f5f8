package main

import (
	"os"

	"github.com/vhibench/vhibench/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
