package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// watchDebounce coalesces the burst of fsnotify events a single photo write
// produces into one sync kick.
const watchDebounce = 2 * time.Second

func newDaemonCmd() *cobra.Command {
	var credential string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run continuously, syncing on a timer and on photo-directory changes",
		Long: `Run in the foreground until interrupted. A pass runs immediately at
startup, then on every tick of the configured interval, and whenever a new
file lands in the photo directory (when photo_dir is configured).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			cleanup, err := writePIDFile(pidFilePath())
			if err != nil {
				return err
			}
			defer cleanup()

			p, err := openPipeline(cmd, logger)
			if err != nil {
				return err
			}
			defer p.close(logger)

			ctx := shutdownContext(cmd.Context(), logger)

			return runDaemon(ctx, p, credential, logger)
		},
	}

	cmd.Flags().StringVar(&credential, "credential", "", "app credential for the token exchange")

	return cmd
}

// runDaemon drives the periodic and watch-triggered sync loop until ctx is
// canceled.
func runDaemon(ctx context.Context, p *pipeline, credential string, logger *slog.Logger) error {
	interval := time.Duration(cfg.SyncIntervalMinutes) * time.Minute

	// Buffered so triggers arriving mid-pass coalesce into one follow-up
	// pass instead of piling up.
	kicks := make(chan struct{}, 1)

	kick := func() {
		select {
		case kicks <- struct{}{}:
		default:
		}
	}

	notifyKicks(ctx, kick, logger)

	g, ctx := errgroup.WithContext(ctx)

	if cfg.PhotoDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}

		if err := watcher.Add(cfg.PhotoDir); err != nil {
			watcher.Close()
			return err
		}

		g.Go(func() error {
			defer watcher.Close()
			return watchPhotoDir(ctx, watcher, kick, logger)
		})

		logger.Info("watching photo directory", slog.String("dir", cfg.PhotoDir))
	}

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("daemon started",
			slog.Duration("interval", interval),
		)

		runPass(ctx, p, credential, logger)

		for {
			select {
			case <-ctx.Done():
				logger.Info("daemon stopping")
				return nil
			case <-ticker.C:
				runPass(ctx, p, credential, logger)
			case <-kicks:
				runPass(ctx, p, credential, logger)
			}
		}
	})

	return g.Wait()
}

// runPass executes one sync pass, logging rather than propagating failures so
// the daemon keeps running.
func runPass(ctx context.Context, p *pipeline, credential string, logger *slog.Logger) {
	if err := p.processor.ProcessQueue(ctx, credential); err != nil {
		logger.Error("sync pass failed", slog.String("error", err.Error()))
	}
}

// watchPhotoDir forwards debounced create/write events as sync kicks.
func watchPhotoDir(ctx context.Context, watcher *fsnotify.Watcher, kick func(), logger *slog.Logger) error {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}

			logger.Debug("photo directory changed",
				slog.String("file", event.Name),
				slog.String("op", event.Op.String()),
			)

			if debounce != nil {
				debounce.Stop()
			}

			debounce = time.AfterFunc(watchDebounce, kick)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("photo directory watch error", slog.String("error", err.Error()))
		}
	}
}
