package main

import (
	"github.com/spf13/cobra"
)

type rootCommand struct {
	*cobra.Command
	ctxCloser func()
}

func newRootCommand() *rootCommand {
	var envFlag string
	ctx := newCommandContext(&envFlag)

	rootCmd := &cobra.Command{
		Use:           "clipctl",
		Short:         "Operate the clipcast publishing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFlag, "env-file", "", "Path to a .env file (default .env when present)")

	rootCmd.AddCommand(newTickCommand(ctx))
	rootCmd.AddCommand(newPostNowCommand(ctx))
	rootCmd.AddCommand(newDiagCommand(ctx))
	rootCmd.AddCommand(newJobsCommand(ctx))
	rootCmd.AddCommand(newRefillCommand(ctx))
	rootCmd.AddCommand(newKeygenCommand())
	rootCmd.AddCommand(newTokenCommand(ctx))

	return &rootCommand{Command: rootCmd, ctxCloser: ctx.close}
}
