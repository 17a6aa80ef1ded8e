package cmd

import (
	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <signal-id>",
		Short: "Run the full pipeline for one signal and print the outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			out, err := app.RunSignal(cmd.Context(), args[0], opts.dryRun)
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
}
