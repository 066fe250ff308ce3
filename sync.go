package main

import (
	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var (
		credential string
		kick       bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass over the pending queue",
		Long: `Run a single sync pass: check connectivity, apply the wifi-only policy,
and process every due pending operation in creation order. Gate conditions
(offline, policy violated, nothing pending) exit successfully without work.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			if kick {
				if err := kickDaemon(pidFilePath()); err != nil {
					return err
				}

				printf(cmd, "sync pass requested from running daemon\n")

				return nil
			}

			p, err := openPipeline(cmd, logger)
			if err != nil {
				return err
			}
			defer p.close(logger)

			if err := p.processor.ProcessQueue(cmd.Context(), credential); err != nil {
				return err
			}

			n, err := p.store.CountPending(cmd.Context())
			if err != nil {
				return err
			}

			printf(cmd, "sync pass complete, %d operation(s) remaining\n", n)

			return nil
		},
	}

	cmd.Flags().StringVar(&credential, "credential", "", "app credential for the token exchange")
	cmd.Flags().BoolVar(&kick, "kick", false, "signal a running daemon instead of syncing in-process")

	return cmd
}
