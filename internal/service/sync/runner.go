package sync

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wattsync/wattsync/internal/config"
	"github.com/wattsync/wattsync/pkg/models"
)

// Runner drives periodic sync passes in the background. On first run it
// checks whether any contract has no stored history and kicks an adaptive
// backfill before settling into the regular interval.
type Runner struct {
	orchestrator *Orchestrator
	cfg          config.SyncConfig
	logger       *slog.Logger

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewRunner creates a background sync runner
func NewRunner(orchestrator *Orchestrator, cfg config.SyncConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger,
	}
}

// Start launches the background loop. Calling Start on a running runner is
// a no-op.
func (r *Runner) Start() {
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.loop()

	r.logger.Info("sync runner started",
		slog.Duration("interval", r.cfg.Interval),
		slog.Duration("warmup_delay", r.cfg.WarmupDelay))
}

// Stop signals the loop to exit and waits for it to finish.
func (r *Runner) Stop() {
	if !r.running {
		return
	}
	close(r.stopCh)
	<-r.doneCh
	r.running = false
	r.logger.Info("sync runner stopped")
}

func (r *Runner) loop() {
	defer close(r.doneCh)

	// Let the rest of the process come up before hitting upstream.
	select {
	case <-time.After(r.cfg.WarmupDelay):
	case <-r.stopCh:
		return
	}

	r.bootstrap()

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runRegular()
		case <-r.stopCh:
			return
		}
	}
}

// bootstrap decides the first pass: contracts with no stored hourly history
// get an adaptive backfill, otherwise a regular sync catches up.
func (r *Runner) bootstrap() {
	ctx := context.Background()

	contracts, err := r.orchestrator.discoverContracts(ctx)
	if err != nil {
		r.logger.Error("initial contract discovery failed",
			slog.String("error", err.Error()))
		return
	}
	if len(contracts) == 0 {
		r.logger.Warn("no contracts found at startup")
		return
	}

	needsBackfill := false
	for _, c := range contracts {
		stats, err := r.orchestrator.usage.GetDataStats(ctx, c.ContractID)
		if err != nil {
			r.logger.Warn("failed to read data stats",
				slog.String("contract_id", c.ContractID),
				slog.String("error", err.Error()))
			continue
		}
		if stats[string(models.IntervalHourly)].Count == 0 {
			needsBackfill = true
			break
		}
	}

	if needsBackfill {
		r.logger.Info("no stored history found, starting adaptive backfill")
		if err := r.orchestrator.StartAdaptiveBackfillAll(ctx, PassOptions{}); err != nil && !errors.Is(err, ErrSyncRunning) {
			r.logger.Error("failed to start adaptive backfill",
				slog.String("error", err.Error()))
		}
		return
	}

	r.runRegular()
}

func (r *Runner) runRegular() {
	ctx := context.Background()

	results, err := r.orchestrator.SyncAll(ctx, PassOptions{})
	if err != nil {
		if errors.Is(err, ErrSyncRunning) {
			r.logger.Debug("skipping scheduled sync, another pass is running")
			return
		}
		r.logger.Error("scheduled sync failed", slog.String("error", err.Error()))
		return
	}

	var synced, skipped, failed int
	for _, stats := range results {
		synced += stats.HourlyDaysSynced + stats.MonthsSynced
		skipped += stats.HourlyDaysSkipped + stats.MonthsSkipped
		failed += len(stats.Errors)
	}
	r.logger.Info("scheduled sync finished",
		slog.Int("contracts", len(results)),
		slog.Int("synced", synced),
		slog.Int("skipped", skipped),
		slog.Int("errors", failed))
}
