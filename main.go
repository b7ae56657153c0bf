// Package main provides the dropthemike command line.
package main

import (
	"fmt"
	"os"

	"github.com/maauso/dropthemike/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
