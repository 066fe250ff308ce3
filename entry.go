package main

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/balancewise/photosync/internal/store"
	"github.com/balancewise/photosync/internal/sync"
)

func newEntryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entry",
		Short: "Manage diet entries and their queued photo sync",
	}

	cmd.AddCommand(newEntryAddCmd())
	cmd.AddCommand(newEntryReplaceCmd())
	cmd.AddCommand(newEntryRemoveCmd())

	return cmd
}

func newEntryAddCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "add <photo-uri>",
		Short: "Create a diet entry and queue its photo for upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			entryID := uuid.NewString()

			if err := st.CreateEntry(ctx, entryID, title, time.Now().UnixMilli(), args[0]); err != nil {
				return err
			}

			opID, err := sync.NewQueue(st, logger).EnqueueUpload(ctx, entryID, args[0])
			if err != nil {
				return err
			}

			printf(cmd, "entry %s created, upload queued as %s\n", entryID, opID)

			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "entry title")

	return cmd
}

func newEntryReplaceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replace <entry-id> <photo-uri>",
		Short: "Replace an entry's photo and queue the remote swap",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()

			entry, err := st.GetEntry(ctx, args[0])
			if err != nil {
				return err
			}

			opID, err := sync.NewQueue(st, logger).EnqueueUpdate(ctx, entry.ID, args[1], entry.RemoteFileID)
			if err != nil {
				return err
			}

			printf(cmd, "replacement queued as %s\n", opID)

			return nil
		},
	}
}

func newEntryRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <entry-id>",
		Short: "Delete a diet entry and queue removal of its remote photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()

			entry, err := st.GetEntry(ctx, args[0])
			if err != nil {
				return err
			}

			// Capture the remote id before the row disappears.
			if entry.RemoteFileID != "" {
				opID, err := sync.NewQueue(st, logger).EnqueueDelete(ctx, entry.RemoteFileID, entry.ID)
				if err != nil {
					return err
				}

				printf(cmd, "remote delete queued as %s\n", opID)
			}

			if err := st.DeleteEntry(ctx, entry.ID); err != nil {
				return err
			}

			printf(cmd, "entry %s removed\n", entry.ID)

			return nil
		},
	}
}
