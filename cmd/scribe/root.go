package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var serverFlag string
	var tokenFlag string

	ctx := newCommandContext(&configFlag, &serverFlag, &tokenFlag)

	rootCmd := &cobra.Command{
		Use:           "scribe",
		Short:         "Scribe CLI",
		Long:          "Submit videos for transcription and analysis, and inspect job progress.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Daemon API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "API bearer token")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newInfoCommand(ctx))
	rootCmd.AddCommand(newResultCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
