package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// NewVersionCmd creates the version command
func NewVersionCmd(version, commit string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "trackcache %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit: %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Go:     %s\n", runtime.Version())
		},
	}
}
