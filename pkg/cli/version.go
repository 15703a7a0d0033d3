package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func FullVersion() string {
	return fmt.Sprintf("soundboard-bot %s, commit %s, built at %s", Version, Commit, Date)
}

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), FullVersion())
		},
	}
}
