// Package main provides the sonido-emotion CLI.
//
// Usage:
//
//	sonido-emotion [flags] <command> [args]
//
// Commands:
//
//	build    - Extract features for a labeled directory tree and export a dataset
//	extract  - Run the feature pipeline on one file and print statistics
//	contract - Print the classifier input/output contract
package main

import (
	"fmt"
	"os"

	"github.com/RyanBlaney/sonido-emotion/cmd/sonido-emotion/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
