package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Dispatch every signal whose interval has elapsed",
		Long: `With the in-memory queue each due signal runs inline; with NATS the
requests are published for the serving workers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := app.Sweep(cmd.Context(), opts.dryRun)
			fmt.Fprintf(cmd.OutOrStdout(), "dispatched %d signal(s)\n", n)
			return err
		},
	}
}
