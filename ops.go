package main

import (
	"github.com/spf13/cobra"

	"github.com/balancewise/photosync/internal/store"
)

func newOpsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Manage queued sync operations",
	}

	cmd.AddCommand(newOpsRetryCmd())
	cmd.AddCommand(newOpsDismissCmd())
	cmd.AddCommand(newOpsPruneCmd())

	return cmd
}

func newOpsRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <operation-id>",
		Short: "Requeue a failed operation with a fresh retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.ResetForRetry(cmd.Context(), args[0]); err != nil {
				return err
			}

			printf(cmd, "operation %s requeued\n", args[0])

			return nil
		},
	}
}

func newOpsDismissCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dismiss <operation-id>",
		Short: "Remove an operation from the queue without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteOperation(cmd.Context(), args[0]); err != nil {
				return err
			}

			printf(cmd, "operation %s dismissed\n", args[0])

			return nil
		},
	}
}

func newOpsPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete completed operations from the outbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.DeleteCompleted(cmd.Context())
			if err != nil {
				return err
			}

			printf(cmd, "pruned %d completed operation(s)\n", n)

			return nil
		},
	}
}
