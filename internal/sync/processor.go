package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/balancewise/photosync/internal/store"
)

// interOpDelay spaces consecutive operations within a pass so a large backlog
// does not hammer the remote API. A rate limit, not a correctness requirement.
const interOpDelay = 500 * time.Millisecond

// CredentialSink receives the app credential supplied to a pass, installing
// it into the token supplier used by the remote client.
type CredentialSink interface {
	SetCredential(credential string)
}

// Processor orchestrates one full sync pass: connectivity and policy gates,
// then the pending operations in creation order, serially. A single-slot
// try-lock makes concurrent invocations no-ops — the durable outbox means
// skipped work is only delayed, never lost.
type Processor struct {
	store   *store.Store
	exec    *Executor
	net     ConnectivityChecker
	cred    CredentialSink
	logger  *slog.Logger
	running atomic.Bool

	opDelay time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewProcessor creates a queue processor. cred may be nil when the remote
// client needs no installed credential (the S3 backend).
func NewProcessor(st *store.Store, exec *Executor, net ConnectivityChecker, cred CredentialSink, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		store:   st,
		exec:    exec,
		net:     net,
		cred:    cred,
		logger:  logger,
		opDelay: interOpDelay,
		sleep:   sleepCtx,
	}
}

// ProcessQueue runs one sync pass. Gate conditions (a pass already running,
// offline, wifi-only policy violated, nothing pending) are silent no-ops,
// not errors. Only failures outside the per-operation boundary — the
// settings read or the queue query — surface to the caller.
func (p *Processor) ProcessQueue(ctx context.Context, credential string) error {
	if !p.running.CompareAndSwap(false, true) {
		p.logger.Debug("sync pass already running, skipping")
		return nil
	}
	defer p.running.Store(false)

	if credential != "" && p.cred != nil {
		p.cred.SetCredential(credential)
	}

	settings, err := p.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("sync: reading settings: %w", err)
	}

	status := p.net.Status(ctx)
	if !status.Online() {
		p.logger.Debug("offline, skipping sync pass")
		return nil
	}

	if settings.WifiOnly && status.Type != LinkWifi {
		p.logger.Debug("wifi-only policy active and link is not wifi, skipping sync pass",
			slog.String("link", string(status.Type)),
		)

		return nil
	}

	ops, err := p.store.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("sync: listing pending operations: %w", err)
	}

	if len(ops) == 0 {
		return nil
	}

	p.logger.Info("sync pass started", slog.Int("pending", len(ops)))

	for i, op := range ops {
		p.safeExecute(ctx, op)

		if ctx.Err() != nil {
			p.logger.Warn("sync pass interrupted",
				slog.Int("processed", i+1),
				slog.Int("pending", len(ops)),
			)

			break
		}

		if i < len(ops)-1 {
			if err := p.sleep(ctx, p.opDelay); err != nil {
				break
			}
		}
	}

	if err := p.store.UpdateLastSync(ctx); err != nil {
		p.logger.Warn("updating last sync time failed",
			slog.String("error", err.Error()),
		)
	}

	p.logger.Info("sync pass finished")

	return nil
}

// Running reports whether a pass is currently active.
func (p *Processor) Running() bool {
	return p.running.Load()
}

// safeExecute wraps Execute with panic recovery so one bad operation never
// blocks the rest of the queue.
func (p *Processor) safeExecute(ctx context.Context, op store.Operation) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while executing operation",
				slog.String("id", op.ID),
				slog.Any("panic", r),
			)
		}
	}()

	p.exec.Execute(ctx, op)
}

// sleepCtx waits for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
