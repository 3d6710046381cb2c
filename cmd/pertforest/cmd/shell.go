package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"pertforest/internal/commander"
)

func (c *cli) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "interactive shell for loading data, training and predicting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return commander.NewCommander(os.Stdout).Start(os.Stdin)
		},
	}
}
