// Package main is the entry point for the footprint application
package main

import (
	"github.com/ethpandaops/footprint/cmd"
)

func main() {
	cmd.Execute()
}
