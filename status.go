package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/balancewise/photosync/internal/store"
	"github.com/balancewise/photosync/internal/sync"
)

// statusReport is the machine-readable shape of `photosync status --json`.
type statusReport struct {
	Pending       int              `json:"pending"`
	Failed        int              `json:"failed"`
	WifiOnly      bool             `json:"wifi_only"`
	LastSyncAt    int64            `json:"last_sync_at"`
	TotalUploads  int              `json:"total_uploads"`
	FailedUploads int              `json:"failed_uploads"`
	FailedOps     []statusFailedOp `json:"failed_ops,omitempty"`
}

type statusFailedOp struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	EntryID    string `json:"entry_id"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error"`
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue depth, sync settings, and failed operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()

			pending, err := st.CountPending(ctx)
			if err != nil {
				return err
			}

			settings, err := st.Settings(ctx)
			if err != nil {
				return err
			}

			failed, err := st.ListFailed(ctx, sync.MaxRetries)
			if err != nil {
				return err
			}

			report := statusReport{
				Pending:       pending,
				Failed:        len(failed),
				WifiOnly:      settings.WifiOnly,
				LastSyncAt:    settings.LastSyncAt,
				TotalUploads:  settings.TotalUploads,
				FailedUploads: settings.FailedUploads,
			}

			for _, op := range failed {
				report.FailedOps = append(report.FailedOps, statusFailedOp{
					ID:         op.ID,
					Type:       op.Type,
					EntryID:    op.EntryID,
					RetryCount: op.RetryCount,
					LastError:  op.LastError,
				})
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")

				return enc.Encode(report)
			}

			printf(cmd, "Pending operations:  %d\n", report.Pending)
			printf(cmd, "Failed operations:   %d\n", report.Failed)
			printf(cmd, "Wifi-only:           %v\n", report.WifiOnly)
			printf(cmd, "Last sync:           %s\n", formatMillis(report.LastSyncAt))
			printf(cmd, "Lifetime uploads:    %d\n", report.TotalUploads)
			printf(cmd, "Lifetime failures:   %d\n", report.FailedUploads)

			if len(report.FailedOps) > 0 {
				printf(cmd, "\nFailed operations:\n")

				for _, op := range report.FailedOps {
					printf(cmd, "  %s  %s  entry=%s  retries=%d  %s\n",
						op.ID, op.Type, op.EntryID, op.RetryCount, op.LastError)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")

	return cmd
}
