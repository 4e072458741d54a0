// Package main is the entry point of the voicecollect CLI.
//
// Usage:
//
//	voicecollect [flags] <command> [subcommand] [args]
//
// Commands:
//
//	record     - Record a pronunciation sample and upload it
//	list       - Show recent submissions
//	config     - Configuration management (contexts, services)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/voicecollect/cmd/voicecollect/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
