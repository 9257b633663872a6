package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "markus",
		Short: "Render markus markup to HTML",
		Long: `markus turns tagged text into HTML.

Tags are written like <note title="Heads up">...</note>. Built-in tags cover
code highlighting, notes, titles, columns, links and API references. More
tags are declared in *.tag.yaml files as Go templates or Starlark scripts.

Run a single render from the command line, or serve the renderer over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		renderCmd(),
		treeCmd(),
		tagsCmd(),
		serveCmd(),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
