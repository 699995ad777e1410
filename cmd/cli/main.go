// Command voxguard classifies voice recordings from the command line.
//
// Usage:
//
//	voxguard [flags] <command> [args]
//
// Commands:
//
//	classify     - Classify one or more audio files
//	features     - Print the MFCC matrix of a file as JSON
//	predictions  - List recorded predictions
//	stats        - Summarise recorded predictions
//	version      - Print the version
//
// Configuration comes from an optional YAML file (--config), .env files and
// VOXGUARD_* environment variables; flags override all of them.
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
