// Package main provides the paramcapture agent binary.
package main

import (
	"fmt"
	"os"

	"github.com/coral-mesh/paramcapture/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
