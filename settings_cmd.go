package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/balancewise/photosync/internal/store"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Adjust sync settings",
	}

	cmd.AddCommand(newSettingsWifiOnlyCmd())
	cmd.AddCommand(newSettingsResetStatsCmd())
	cmd.AddCommand(newSettingsResetFailedCmd())

	return cmd
}

func newSettingsWifiOnlyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wifi-only on|off",
		Short: "Restrict sync passes to wifi links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool

			switch args[0] {
			case "on":
				enabled = true
			case "off":
				enabled = false
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.SetWifiOnly(cmd.Context(), enabled); err != nil {
				return err
			}

			printf(cmd, "wifi-only set to %v\n", enabled)

			return nil
		},
	}
}

func newSettingsResetStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stats",
		Short: "Zero the lifetime upload and failure counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.ResetStats(cmd.Context()); err != nil {
				return err
			}

			printf(cmd, "sync statistics reset\n")

			return nil
		},
	}
}

func newSettingsResetFailedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-failed",
		Short: "Zero only the lifetime failure counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			st, err := store.Open(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.ResetFailedUploads(cmd.Context()); err != nil {
				return err
			}

			printf(cmd, "failure counter reset\n")

			return nil
		},
	}
}
