package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/balancewise/photosync/internal/config"
	"github.com/balancewise/photosync/internal/drive"
	"github.com/balancewise/photosync/internal/s3store"
	"github.com/balancewise/photosync/internal/store"
	"github.com/balancewise/photosync/internal/sync"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// cfg holds the configuration loaded by PersistentPreRunE, available to all
// subcommands after the root pre-run phase completes.
var cfg *config.Config

// httpClientTimeout bounds every remote call so a hung connection never
// blocks a pass indefinitely.
const httpClientTimeout = 60 * time.Second

// logFileMaxSizeMB and logFileMaxBackups bound the rotating daemon log.
const (
	logFileMaxSizeMB  = 20
	logFileMaxBackups = 3
)

// newRootCmd builds the fully-assembled root command. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "photosync",
		Short:   "BalanceWise photo sync agent",
		Long:    "Durable outbox sync of BalanceWise diet photos to cloud storage.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := config.Load(flagConfigPath)
			if err != nil {
				return err
			}

			cfg = loaded

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newDaemonCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newEntryCmd())
	cmd.AddCommand(newOpsCmd())
	cmd.AddCommand(newSettingsCmd())

	return cmd
}

// buildLogger creates an slog.Logger from config and CLI flags. Text output
// on a TTY, JSON otherwise; a configured log_file adds rotation.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// CLI flags override config.
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	var w io.Writer = os.Stderr
	if cfg != nil && cfg.LogFile != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    logFileMaxSizeMB,
			MaxBackups: logFileMaxBackups,
		}

		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}

	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// pipeline bundles the wired sync components shared by the CLI commands.
type pipeline struct {
	store     *store.Store
	processor *sync.Processor
}

// openPipeline opens the store and wires the remote backend, executor, and
// processor per the loaded config.
func openPipeline(cmd *cobra.Command, logger *slog.Logger) (*pipeline, error) {
	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: httpClientTimeout}

	var (
		remote sync.Remote
		sink   sync.CredentialSink
	)

	switch cfg.Backend {
	case config.BackendS3:
		remote, err = s3store.New(cmd.Context(), s3store.Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, logger)
		if err != nil {
			st.Close()
			return nil, err
		}
	default:
		tokens := drive.NewTokenManager(cfg.TokenEndpoint(), httpClient, logger)
		sink = tokens
		remote = drive.NewClient(tokens, st, httpClient, logger)
	}

	exec := sync.NewExecutor(st, remote, logger)
	processor := sync.NewProcessor(st, exec, sync.NewHTTPChecker(logger), sink, logger)

	return &pipeline{store: st, processor: processor}, nil
}

func (p *pipeline) close(logger *slog.Logger) {
	if err := p.store.Close(); err != nil {
		logger.Warn("closing store failed", slog.String("error", err.Error()))
	}
}

// formatMillis renders a unix-millisecond timestamp for human output.
func formatMillis(ms int64) string {
	if ms == 0 {
		return "never"
	}

	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

// printf writes to the command's stdout so tests can capture output.
func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
