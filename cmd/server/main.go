package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pagetrail",
		Short:         "Pagetrail - privacy friendly web analytics collector",
		SilenceUsage:  true,
		RunE:          runServe,
	}

	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newHashIDCommand(),
		newWebsiteCommand(),
		newTeamCommand(),
	)
	return root
}
