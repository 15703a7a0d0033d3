// Package cli holds the command line entry points of the bot.
package cli

import (
	"github.com/cloudgroundcontrol/soundboard-bot/pkg/config"
	"github.com/spf13/cobra"
)

type Dependencies struct {
	Config *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "soundboard-bot",
		Short: "Discord bot that reacts to what is said in voice channels",
		Long:  "A Discord bot that records speakers in a voice channel, recognizes their speech and plays soundboard clips in response. It also plays music on request.",
	}

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(FullVersion() + "\n")

	runCmd := NewRunCmd(deps)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(NewDoctorCmd(deps))
	rootCmd.AddCommand(NewVersionCmd())

	// Running the bot is the default
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
	rootCmd.RunE = runCmd.RunE

	return rootCmd
}
