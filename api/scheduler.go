/*
scheduler.go - Automated payment horizon extension

PURPOSE:
  Open-ended activities are materialized through Dec 31 of next year. As the
  calendar advances that horizon moves, so a periodic job synchronizes every
  open-ended schedule and appends the payments that came into range.

DESIGN:
  - robfig/cron with a standard 5-field spec (default "0 3 * * *")
  - SkipIfStillRunning: a slow run is never overlapped by the next tick
  - Each run is bounded by Timeout
  - RunNow runs the same job synchronously (CLI sync-payments, tests)

USAGE:
  scheduler := NewHorizonScheduler(svc, cfg.HorizonCron, logger)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - core/service.go: ExtendOpenEnded
  - cmd/server/main.go: serve and sync-payments commands
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/warp/appropriation-engine/core"
)

// DefaultHorizonSpec runs the extension nightly.
const DefaultHorizonSpec = "0 3 * * *"

// HorizonScheduler periodically extends open-ended payment schedules.
type HorizonScheduler struct {
	Service *core.Service
	Spec    string
	Timeout time.Duration
	Logger  *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewHorizonScheduler creates a scheduler. An empty spec means DefaultHorizonSpec.
func NewHorizonScheduler(svc *core.Service, spec string, logger *slog.Logger) *HorizonScheduler {
	if spec == "" {
		spec = DefaultHorizonSpec
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HorizonScheduler{
		Service: svc,
		Spec:    spec,
		Timeout: 10 * time.Minute,
		Logger:  logger.With("component", "horizon-scheduler"),
	}
}

// Start registers the job and starts the cron runner. Starting twice is a no-op.
func (hs *HorizonScheduler) Start() error {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{hs.Logger})))
	if _, err := c.AddFunc(hs.Spec, func() { _, _ = hs.RunNow(context.Background()) }); err != nil {
		return fmt.Errorf("horizon schedule %q: %w", hs.Spec, err)
	}
	c.Start()
	hs.cron = c

	hs.Logger.Info("scheduler started", "spec", hs.Spec)
	return nil
}

// Stop stops the runner and waits for a running job to finish.
func (hs *HorizonScheduler) Stop() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.cron == nil {
		return
	}
	<-hs.cron.Stop().Done()
	hs.cron = nil
	hs.Logger.Info("scheduler stopped")
}

// RunNow extends every open-ended schedule once.
func (hs *HorizonScheduler) RunNow(ctx context.Context) (core.SyncResult, error) {
	if hs.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, hs.Timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := hs.Service.ExtendOpenEnded(ctx)
	if err != nil {
		hs.Logger.Error("horizon extension failed", "error", err)
		return res, err
	}
	hs.Logger.Info("horizon extension completed",
		"added", res.Added, "removed", res.Removed, "duration", time.Since(start))
	return res, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
