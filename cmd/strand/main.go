// Package main is the CLI entry point for the Strand conversational agent
// runtime.
//
// Start the server (web + telegram front ends per config):
//
//	strand serve --config strand.yaml
//
// Talk to the agent locally against the in-memory stack:
//
//	strand chat
//
// API keys are read from the config file, which supports ${ENV} expansion.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "strand",
		Short:         "Strand conversational agent runtime",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newChatCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
