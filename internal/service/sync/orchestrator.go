// Package sync pulls usage data from the upstream provider into the store.
// One pass runs at a time process-wide; a pass touches upstream only for
// days and months the store does not already hold.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wattsync/wattsync/internal/cache"
	"github.com/wattsync/wattsync/internal/config"
	"github.com/wattsync/wattsync/internal/logging"
	"github.com/wattsync/wattsync/internal/metrics"
	"github.com/wattsync/wattsync/internal/provider"
	"github.com/wattsync/wattsync/internal/storage"
	"github.com/wattsync/wattsync/pkg/models"
)

// ErrSyncRunning is returned when a sync is requested while another pass is
// already in flight. Callers treat it as a state, not a failure.
var ErrSyncRunning = errors.New("sync already running")

// ErrUnknownContract is returned when a sync targets a contract that is
// neither stored nor visible upstream.
var ErrUnknownContract = errors.New("unknown contract")

// UsageStore is the storage surface sync writes through.
type UsageStore interface {
	UpsertUsage(ctx context.Context, contractID string, interval models.Interval, rec models.UsageRecord) error
	HasDataForDate(ctx context.Context, contractID string, date time.Time, interval models.Interval) (bool, error)
	HasDataForMonth(ctx context.Context, contractID, month string) (bool, error)
	GetOldestDataDate(ctx context.Context, contractID string, interval models.Interval) (time.Time, error)
	GetLatestDataDate(ctx context.Context, contractID string, interval models.Interval) (time.Time, error)
	GetDailyTotal(ctx context.Context, contractID string, date time.Time) (*models.UsageRecord, error)
	GetDataStats(ctx context.Context, contractID string) (models.DataStats, error)
}

// AccountStore is the identity surface sync depends on.
type AccountStore interface {
	UpsertContract(ctx context.Context, contractID, accountID string) error
	GetAllContracts(ctx context.Context) ([]models.Contract, error)
	GetContractAccount(ctx context.Context, contractID string) (string, error)
}

// Notifier receives data-change signals after a pass that wrote new data.
type Notifier interface {
	NotifyDataUpdated(ctx context.Context, contractIDs []string)
	PublishLatest(contractID string, rec models.UsageRecord)
}

// PassOptions tunes a single pass. Zero values fall back to the configured
// windows.
type PassOptions struct {
	DaysBack  int       // regular sync: how many recent days to cover hourly
	Months    int       // how many recent months to cover daily
	Force     bool      // refetch days and months the store already holds
	StartDate time.Time // adaptive backfill: where the backward walk starts
}

// Orchestrator coordinates sync and backfill passes across contracts.
type Orchestrator struct {
	provider provider.Client
	usage    UsageStore
	accounts AccountStore
	notifier Notifier
	cache    *cache.Cache
	cfg      config.SyncConfig
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	progress map[string]models.BackfillProgress
}

// Option configures the orchestrator
type Option func(*Orchestrator)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithNow overrides the clock (for testing)
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates a sync orchestrator
func New(client provider.Client, usageStore UsageStore, accountStore AccountStore, notifier Notifier, c *cache.Cache, cfg config.SyncConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: client,
		usage:    usageStore,
		accounts: accountStore,
		notifier: notifier,
		cache:    c,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		progress: make(map[string]models.BackfillProgress),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Status reports whether a pass is running and any backfill progress.
func (o *Orchestrator) Status() models.SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	progress := make(map[string]models.BackfillProgress, len(o.progress))
	for k, v := range o.progress {
		progress[k] = v
	}
	return models.SyncStatus{Running: o.running, Progress: progress}
}

func (o *Orchestrator) tryAcquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return false
	}
	o.running = true
	metrics.SyncRunning.Set(1)
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
	metrics.SyncRunning.Set(0)
}

// clearProgress drops progress entries from earlier batches. Only the start
// of a new adaptive batch clears them; they stay visible otherwise so a
// finished backfill can be inspected after the fact.
func (o *Orchestrator) clearProgress() {
	o.mu.Lock()
	o.progress = make(map[string]models.BackfillProgress)
	o.mu.Unlock()
}

func (o *Orchestrator) setProgress(contractID string, p models.BackfillProgress) {
	p.UpdatedAt = o.now()
	o.mu.Lock()
	o.progress[contractID] = p
	o.mu.Unlock()
}

// SyncAll runs a regular sync pass over every known contract: recent days
// at hourly granularity plus recent months at daily granularity.
func (o *Orchestrator) SyncAll(ctx context.Context, opts PassOptions) (map[string]models.SyncStats, error) {
	if !o.tryAcquire() {
		return nil, ErrSyncRunning
	}
	defer o.release()

	contracts, err := o.discoverContracts(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]models.SyncStats, len(contracts))
	for _, c := range contracts {
		stats := o.syncContract(ctx, c, opts)
		results[c.ContractID] = stats
	}

	metrics.SyncRunsTotal.WithLabelValues("regular").Inc()
	o.finish(ctx, results)
	return results, nil
}

// SyncContract runs a regular sync pass for one contract.
func (o *Orchestrator) SyncContract(ctx context.Context, contractID string, opts PassOptions) (models.SyncStats, error) {
	if !o.tryAcquire() {
		return models.SyncStats{}, ErrSyncRunning
	}
	defer o.release()

	contract, err := o.resolveContract(ctx, contractID)
	if err != nil {
		return models.SyncStats{}, err
	}

	stats := o.syncContract(ctx, contract, opts)
	metrics.SyncRunsTotal.WithLabelValues("regular").Inc()
	o.finish(ctx, map[string]models.SyncStats{contractID: stats})
	return stats, nil
}

// Backfill runs a fixed-window backfill over every known contract, pulling
// the given number of months at daily granularity.
func (o *Orchestrator) Backfill(ctx context.Context, months int) (map[string]models.SyncStats, error) {
	if !o.tryAcquire() {
		return nil, ErrSyncRunning
	}
	defer o.release()

	if months <= 0 {
		months = o.cfg.BackfillMonths
	}

	contracts, err := o.discoverContracts(ctx)
	if err != nil {
		return nil, err
	}

	results := make(map[string]models.SyncStats, len(contracts))
	for _, c := range contracts {
		stats := models.SyncStats{ContractID: c.ContractID}
		o.syncMonths(ctx, c, months, false, &stats)
		o.recordOldest(ctx, c.ContractID, &stats)
		results[c.ContractID] = stats
	}

	metrics.SyncRunsTotal.WithLabelValues("backfill").Inc()
	o.finish(ctx, results)
	return results, nil
}

// StartAdaptiveBackfillAll begins an adaptive backfill for every known
// contract in the background. Returns ErrSyncRunning if a pass is already
// in flight.
func (o *Orchestrator) StartAdaptiveBackfillAll(ctx context.Context, opts PassOptions) error {
	if !o.tryAcquire() {
		return ErrSyncRunning
	}

	contracts, err := o.discoverContracts(ctx)
	if err != nil {
		o.release()
		return err
	}

	o.clearProgress()
	go o.runAdaptive(contracts, opts)
	return nil
}

// StartAdaptiveBackfill begins an adaptive backfill for one contract in the
// background. Returns ErrSyncRunning if a pass is already in flight.
func (o *Orchestrator) StartAdaptiveBackfill(ctx context.Context, contractID string, opts PassOptions) error {
	if !o.tryAcquire() {
		return ErrSyncRunning
	}

	contract, err := o.resolveContract(ctx, contractID)
	if err != nil {
		o.release()
		return err
	}

	go o.runAdaptive([]models.Contract{contract}, opts)
	return nil
}

// runAdaptive owns the background adaptive pass. It releases the
// single-flight flag when done.
func (o *Orchestrator) runAdaptive(contracts []models.Contract, opts PassOptions) {
	defer o.release()

	// The pass outlives the triggering HTTP request.
	ctx := context.Background()

	results := make(map[string]models.SyncStats, len(contracts))
	for _, c := range contracts {
		results[c.ContractID] = o.backfillAdaptive(ctx, c, opts)
	}

	metrics.SyncRunsTotal.WithLabelValues("adaptive").Inc()
	o.finish(ctx, results)
}

// syncContract runs the regular window for one contract: recent days hourly
// and recent months daily, windows from opts or configuration.
func (o *Orchestrator) syncContract(ctx context.Context, contract models.Contract, opts PassOptions) models.SyncStats {
	ctx = logging.WithContractID(ctx, contract.ContractID)
	stats := models.SyncStats{ContractID: contract.ContractID}

	days := opts.DaysBack
	if days <= 0 {
		days = o.cfg.RegularDays
	}
	months := opts.Months
	if months <= 0 {
		months = o.cfg.RegularMonths
	}

	today := o.today()
	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, -i)
		o.syncDay(ctx, contract, date, opts.Force, &stats)
	}

	o.syncMonths(ctx, contract, months, opts.Force, &stats)
	o.recordOldest(ctx, contract.ContractID, &stats)

	o.logger.Info("sync pass finished",
		slog.String("contract_id", contract.ContractID),
		slog.Int("days_synced", stats.HourlyDaysSynced),
		slog.Int("days_skipped", stats.HourlyDaysSkipped),
		slog.Int("days_empty", stats.HourlyDaysEmpty),
		slog.Int("months_synced", stats.MonthsSynced),
		slog.Int("errors", len(stats.Errors)))
	return stats
}

// backfillAdaptive walks backward one day at a time until it sees enough
// consecutive empty days to conclude it has passed the start of the
// account's history. Days already stored are skipped without an upstream
// call and reset the empty streak, since stored data proves history
// continues at least that far back.
func (o *Orchestrator) backfillAdaptive(ctx context.Context, contract models.Contract, opts PassOptions) models.SyncStats {
	ctx = logging.WithContractID(ctx, contract.ContractID)
	stats := models.SyncStats{ContractID: contract.ContractID}

	start := opts.StartDate
	if start.IsZero() {
		start = o.today().AddDate(0, 0, -o.cfg.BackfillStartOffset)
	}
	months := opts.Months
	if months <= 0 {
		months = o.cfg.BackfillMonths
	}
	emptyStreak := 0
	progress := models.BackfillProgress{Status: models.BackfillInProgress}
	o.setProgress(contract.ContractID, progress)

	for i := 0; i < o.cfg.BackfillMaxDays; i++ {
		if ctx.Err() != nil {
			stats.Errors = append(stats.Errors, ctx.Err().Error())
			break
		}

		date := start.AddDate(0, 0, -i)
		progress.DaysProcessed = i + 1
		progress.CurrentDate = date.Format(models.DateLayout)

		if !opts.Force {
			exists, err := o.usage.HasDataForDate(ctx, contract.ContractID, date, models.IntervalHourly)
			if err != nil {
				stats.Errors = append(stats.Errors, err.Error())
				metrics.RecordSyncDay("error")
				o.setProgress(contract.ContractID, progress)
				continue
			}
			if exists {
				stats.HourlyDaysSkipped++
				emptyStreak = 0
				metrics.RecordSyncDay("skipped")
				o.setProgress(contract.ContractID, progress)
				continue
			}
		}

		records, err := o.provider.GetHourlyUsage(ctx, contract.ContractID, contract.AccountID, date)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", date.Format(models.DateLayout), err))
			metrics.RecordSyncDay("error")
			o.setProgress(contract.ContractID, progress)
			if provider.IsAuthError(err) {
				break
			}
			o.pause(ctx)
			continue
		}

		if len(records) == 0 {
			stats.HourlyDaysEmpty++
			emptyStreak++
			progress.HourlyEmpty++
			metrics.RecordSyncDay("empty")
			o.setProgress(contract.ContractID, progress)
			if emptyStreak >= o.cfg.EmptyDaysThreshold {
				o.logger.Info("adaptive backfill reached start of history",
					slog.String("contract_id", contract.ContractID),
					slog.String("date", date.Format(models.DateLayout)),
					slog.Int("empty_streak", emptyStreak))
				break
			}
			o.pause(ctx)
			continue
		}

		if err := o.storeDay(ctx, contract.ContractID, date, records); err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			metrics.RecordSyncDay("error")
		} else {
			stats.HourlyDaysSynced++
			progress.HourlySynced++
			emptyStreak = 0
			metrics.RecordSyncDay("synced")
		}
		o.setProgress(contract.ContractID, progress)
		o.pause(ctx)
	}

	o.syncMonths(ctx, contract, months, opts.Force, &stats)
	o.recordOldest(ctx, contract.ContractID, &stats)

	progress.OldestDataDate = stats.OldestDataDate
	progress.Status = models.BackfillCompleted
	o.setProgress(contract.ContractID, progress)

	o.logger.Info("adaptive backfill finished",
		slog.String("contract_id", contract.ContractID),
		slog.Int("days_synced", stats.HourlyDaysSynced),
		slog.Int("days_skipped", stats.HourlyDaysSkipped),
		slog.Int("days_empty", stats.HourlyDaysEmpty),
		slog.String("oldest_data_date", stats.OldestDataDate))
	return stats
}

// syncDay fetches and stores one day of hourly data unless the store
// already holds it.
func (o *Orchestrator) syncDay(ctx context.Context, contract models.Contract, date time.Time, force bool, stats *models.SyncStats) {
	if !force {
		exists, err := o.usage.HasDataForDate(ctx, contract.ContractID, date, models.IntervalHourly)
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			metrics.RecordSyncDay("error")
			return
		}
		if exists {
			stats.HourlyDaysSkipped++
			metrics.RecordSyncDay("skipped")
			return
		}
	}

	records, err := o.provider.GetHourlyUsage(ctx, contract.ContractID, contract.AccountID, date)
	if err != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", date.Format(models.DateLayout), err))
		metrics.RecordSyncDay("error")
		return
	}
	if len(records) == 0 {
		stats.HourlyDaysEmpty++
		metrics.RecordSyncDay("empty")
		return
	}

	if err := o.storeDay(ctx, contract.ContractID, date, records); err != nil {
		stats.Errors = append(stats.Errors, err.Error())
		metrics.RecordSyncDay("error")
		return
	}
	stats.HourlyDaysSynced++
	metrics.RecordSyncDay("synced")
}

func (o *Orchestrator) storeDay(ctx context.Context, contractID string, date time.Time, records []models.UsageRecord) error {
	for _, rec := range records {
		if err := o.usage.UpsertUsage(ctx, contractID, models.IntervalHourly, rec); err != nil {
			return fmt.Errorf("storing hourly data for %s: %w", date.Format(models.DateLayout), err)
		}
	}
	o.cache.Delete(cache.HourlyKey(contractID, date))
	return nil
}

// syncMonths pulls daily-granularity data for the last `months` calendar
// months. The current and previous months are always refetched because
// their data is still arriving; older months are skipped once stored.
func (o *Orchestrator) syncMonths(ctx context.Context, contract models.Contract, months int, force bool, stats *models.SyncStats) {
	today := o.today()
	currentMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < months; i++ {
		month := currentMonth.AddDate(0, -i, 0)

		if i >= 2 && !force {
			exists, err := o.usage.HasDataForMonth(ctx, contract.ContractID, month.Format(models.MonthLayout))
			if err != nil {
				stats.Errors = append(stats.Errors, err.Error())
				metrics.RecordSyncMonth("error")
				continue
			}
			if exists {
				stats.MonthsSkipped++
				metrics.RecordSyncMonth("skipped")
				continue
			}
		}

		last := month.AddDate(0, 1, -1)
		if last.After(today) {
			last = today
		}

		records, err := o.provider.GetUsageRange(ctx, contract.ContractID, contract.AccountID, month, last)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", month.Format(models.MonthLayout), err))
			metrics.RecordSyncMonth("error")
			continue
		}
		if len(records) == 0 {
			stats.MonthsSkipped++
			metrics.RecordSyncMonth("skipped")
			continue
		}

		var failed bool
		for _, rec := range records {
			if err := o.usage.UpsertUsage(ctx, contract.ContractID, models.IntervalDaily, rec); err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("storing daily data for %s: %v", month.Format(models.MonthLayout), err))
				metrics.RecordSyncMonth("error")
				failed = true
				break
			}
		}
		if !failed {
			stats.MonthsSynced++
			metrics.RecordSyncMonth("synced")
		}
		o.pause(ctx)
	}
}

func (o *Orchestrator) recordOldest(ctx context.Context, contractID string, stats *models.SyncStats) {
	oldest, err := o.usage.GetOldestDataDate(ctx, contractID, models.IntervalHourly)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			stats.Errors = append(stats.Errors, err.Error())
		}
		return
	}
	stats.OldestDataDate = oldest.Format(models.DateLayout)
}

// finish invalidates caches and fans out notifications for contracts that
// received new data.
func (o *Orchestrator) finish(ctx context.Context, results map[string]models.SyncStats) {
	var changed []string
	for contractID, stats := range results {
		if stats.Changed() {
			changed = append(changed, contractID)
		}
	}
	if len(changed) == 0 {
		return
	}

	// Derived views (summaries, monthly ranges) are stale now.
	o.cache.Clear()

	o.notifier.NotifyDataUpdated(ctx, changed)
	for _, contractID := range changed {
		o.publishLatest(ctx, contractID)
	}
}

// publishLatest pushes the newest daily total for a contract over MQTT.
func (o *Orchestrator) publishLatest(ctx context.Context, contractID string) {
	latest, err := o.usage.GetLatestDataDate(ctx, contractID, models.IntervalHourly)
	if err != nil {
		return
	}
	rec, err := o.usage.GetDailyTotal(ctx, contractID, latest)
	if err != nil {
		return
	}
	o.notifier.PublishLatest(contractID, *rec)
}

// discoverContracts refreshes the contract list from upstream, falling back
// to stored contracts when upstream is unreachable.
func (o *Orchestrator) discoverContracts(ctx context.Context) ([]models.Contract, error) {
	accounts, err := o.provider.ListAccounts(ctx)
	if err != nil {
		if provider.IsAuthError(err) {
			return nil, err
		}
		o.logger.Warn("account discovery failed, using stored contracts",
			slog.String("error", err.Error()))
		return o.accounts.GetAllContracts(ctx)
	}

	var contracts []models.Contract
	for _, acct := range accounts {
		for _, c := range acct.Contracts {
			if err := o.accounts.UpsertContract(ctx, c.ContractID, acct.AccountID); err != nil {
				return nil, err
			}
			contracts = append(contracts, c)
		}
	}
	return contracts, nil
}

func (o *Orchestrator) resolveContract(ctx context.Context, contractID string) (models.Contract, error) {
	accountID, err := o.accounts.GetContractAccount(ctx, contractID)
	if err == nil {
		return models.Contract{ContractID: contractID, AccountID: accountID}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.Contract{}, err
	}

	contracts, err := o.discoverContracts(ctx)
	if err != nil {
		return models.Contract{}, err
	}
	for _, c := range contracts {
		if c.ContractID == contractID {
			return c, nil
		}
	}
	return models.Contract{}, fmt.Errorf("%w: %s", ErrUnknownContract, contractID)
}

// pause waits the configured inter-call delay, returning early if the
// context is cancelled.
func (o *Orchestrator) pause(ctx context.Context) {
	if o.cfg.APIDelay <= 0 {
		return
	}
	select {
	case <-time.After(o.cfg.APIDelay):
	case <-ctx.Done():
	}
}

func (o *Orchestrator) today() time.Time {
	now := o.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
