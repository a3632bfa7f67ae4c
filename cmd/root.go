package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tgfleet",
		Short:         "tgfleet: run bulk actions and keyword monitoring across many accounts",
		Long:          "tgfleet holds many authenticated messaging sessions, runs bulk actions (join, react, vote, block, dm, comment) across a chosen subset with bounded concurrency, and forwards keyword matches to an operator channel.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}
	rootCmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return app.close()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newAccountCmd(app),
		newBulkCmd(app),
		newMonitorCmd(app),
	)

	return rootCmd
}
