package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/skyscope"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of skyscope",
		// Skip config loading: version must work without a valid config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "skyscope version %s\n", strings.TrimSpace(skyscope.Version))
		},
	}
}
