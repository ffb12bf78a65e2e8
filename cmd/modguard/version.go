package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kolkov/modguard/internal/classfile"
)

// This will be set by the release build
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "modguard version %s (module format %s)\n", version, classfile.FormatVersion)
		},
	}
}
