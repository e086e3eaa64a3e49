// Package usage implements the read path: database-first queries over
// stored usage, with upstream fetch-and-store on a miss. Every read that
// reaches upstream persists what it got, so repeat reads stay local.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/wattsync/wattsync/internal/cache"
	"github.com/wattsync/wattsync/internal/provider"
	"github.com/wattsync/wattsync/internal/storage"
	"github.com/wattsync/wattsync/pkg/models"
)

// ErrUnknownContract is returned when a contract ID is not visible to the
// configured credentials and not present in the store.
var ErrUnknownContract = errors.New("unknown contract")

// ErrInvalidRange is returned when a caller-supplied date range cannot be
// used as given.
var ErrInvalidRange = errors.New("invalid range")

// fallbackProbeDays bounds the backward upstream probe when the store has
// no data at all for a contract.
const fallbackProbeDays = 8

// UsageStore is the storage surface the read path depends on.
type UsageStore interface {
	UpsertUsage(ctx context.Context, contractID string, interval models.Interval, rec models.UsageRecord) error
	GetUsage(ctx context.Context, contractID string, start, end time.Time, interval models.Interval) ([]models.UsageRecord, error)
	GetDailyTotal(ctx context.Context, contractID string, date time.Time) (*models.UsageRecord, error)
	GetMonthlyAggregate(ctx context.Context, contractID, month string) (*models.MonthlyAggregate, error)
	GetLatestDataDate(ctx context.Context, contractID string, interval models.Interval) (time.Time, error)
	GetDataStats(ctx context.Context, contractID string) (models.DataStats, error)
}

// AccountStore is the identity surface the read path depends on.
type AccountStore interface {
	UpsertContract(ctx context.Context, contractID, accountID string) error
	GetAllContracts(ctx context.Context) ([]models.Contract, error)
	GetContractAccount(ctx context.Context, contractID string) (string, error)
}

// Service answers usage queries from the store, reaching upstream only when
// the store has no answer.
type Service struct {
	provider provider.Client
	usage    UsageStore
	accounts AccountStore
	cache    *cache.Cache
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the service
type Option func(*Service)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNow overrides the clock (for testing)
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a usage service
func New(client provider.Client, usageStore UsageStore, accountStore AccountStore, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		provider: client,
		usage:    usageStore,
		accounts: accountStore,
		cache:    c,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAccounts returns the accounts and contracts visible upstream, persisting
// any new contracts. When upstream is unreachable it falls back to the
// contracts already stored.
func (s *Service) GetAccounts(ctx context.Context) ([]models.Account, error) {
	if cached, ok := s.cache.Get(cache.AccountsKey); ok {
		return cached.([]models.Account), nil
	}

	accounts, err := s.provider.ListAccounts(ctx)
	if err != nil {
		if provider.IsAuthError(err) {
			return nil, err
		}
		s.logger.Warn("account discovery failed, falling back to stored contracts",
			slog.String("error", err.Error()))
		return s.storedAccounts(ctx)
	}

	for _, acct := range accounts {
		for _, c := range acct.Contracts {
			if err := s.accounts.UpsertContract(ctx, c.ContractID, acct.AccountID); err != nil {
				return nil, fmt.Errorf("persisting contract %s: %w", c.ContractID, err)
			}
		}
	}

	s.cache.Set(cache.AccountsKey, accounts)
	return accounts, nil
}

// storedAccounts rebuilds the account grouping from persisted contracts.
func (s *Service) storedAccounts(ctx context.Context) ([]models.Account, error) {
	contracts, err := s.accounts.GetAllContracts(ctx)
	if err != nil {
		return nil, err
	}

	var accounts []models.Account
	index := make(map[string]int)
	for _, c := range contracts {
		i, ok := index[c.AccountID]
		if !ok {
			i = len(accounts)
			index[c.AccountID] = i
			accounts = append(accounts, models.Account{AccountID: c.AccountID})
		}
		accounts[i].Contracts = append(accounts[i].Contracts, c)
	}
	return accounts, nil
}

// resolveAccount maps a contract to its account, refreshing from upstream
// once if the contract is not yet stored.
func (s *Service) resolveAccount(ctx context.Context, contractID string) (string, error) {
	accountID, err := s.accounts.GetContractAccount(ctx, contractID)
	if err == nil {
		return accountID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	if _, err := s.GetAccounts(ctx); err != nil {
		return "", err
	}

	accountID, err = s.accounts.GetContractAccount(ctx, contractID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrUnknownContract, contractID)
	}
	return accountID, err
}

// GetHourlyUsage returns the hourly breakdown for a date, fetching and
// storing from upstream when the store has no rows for it.
func (s *Service) GetHourlyUsage(ctx context.Context, contractID string, date time.Time) (*models.HourlyUsage, error) {
	key := cache.HourlyKey(contractID, date)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*models.HourlyUsage), nil
	}

	day := truncateDay(date)
	records, err := s.usage.GetUsage(ctx, contractID, day, day.Add(24*time.Hour-time.Second), models.IntervalHourly)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		accountID, err := s.resolveAccount(ctx, contractID)
		if err != nil {
			return nil, err
		}

		records, err = s.provider.GetHourlyUsage(ctx, contractID, accountID, day)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if err := s.usage.UpsertUsage(ctx, contractID, models.IntervalHourly, rec); err != nil {
				return nil, fmt.Errorf("storing hourly record: %w", err)
			}
		}
	}

	result := buildHourly(day, records)
	s.cache.Set(key, result)
	return result, nil
}

func buildHourly(day time.Time, records []models.UsageRecord) *models.HourlyUsage {
	result := &models.HourlyUsage{Date: day, Hours: records}
	var dollarTotal float64
	var haveDollar bool
	for _, rec := range records {
		result.TotalValue += rec.Value
		if rec.DollarValue != nil {
			dollarTotal += *rec.DollarValue
			haveDollar = true
		}
	}
	if haveDollar {
		result.TotalDollarValue = &dollarTotal
	}
	return result
}

// GetMonthlyUsage returns aggregates for every month in the inclusive
// YYYY-MM range, fetching months the store has nothing for.
func (s *Service) GetMonthlyUsage(ctx context.Context, contractID, startMonth, endMonth string) ([]models.MonthlyAggregate, error) {
	start, err := time.Parse(models.MonthLayout, startMonth)
	if err != nil {
		return nil, fmt.Errorf("%w: start month %q", ErrInvalidRange, startMonth)
	}
	end, err := time.Parse(models.MonthLayout, endMonth)
	if err != nil {
		return nil, fmt.Errorf("%w: end month %q", ErrInvalidRange, endMonth)
	}
	if start.After(end) {
		return nil, fmt.Errorf("%w: start month %s is after end month %s", ErrInvalidRange, startMonth, endMonth)
	}

	key := cache.MonthlyKey(contractID, startMonth, endMonth)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]models.MonthlyAggregate), nil
	}

	var aggregates []models.MonthlyAggregate
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		agg, err := s.getMonthAggregate(ctx, contractID, m)
		if err != nil {
			return nil, err
		}
		if agg != nil {
			aggregates = append(aggregates, *agg)
		}
	}

	s.cache.Set(key, aggregates)
	return aggregates, nil
}

// getMonthAggregate answers one month database-first. A nil aggregate with
// a nil error means the month genuinely has no data anywhere.
func (s *Service) getMonthAggregate(ctx context.Context, contractID string, month time.Time) (*models.MonthlyAggregate, error) {
	agg, err := s.usage.GetMonthlyAggregate(ctx, contractID, month.Format(models.MonthLayout))
	if err == nil {
		return agg, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return s.fetchMonth(ctx, contractID, month)
}

// fetchMonth pulls one month of daily records from upstream, stores them,
// and aggregates what came back. The current month is clamped to today.
func (s *Service) fetchMonth(ctx context.Context, contractID string, month time.Time) (*models.MonthlyAggregate, error) {
	accountID, err := s.resolveAccount(ctx, contractID)
	if err != nil {
		return nil, err
	}

	first := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	if today := truncateDay(s.now()); last.After(today) {
		last = today
	}

	records, err := s.provider.GetUsageRange(ctx, contractID, accountID, first, last)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	for _, rec := range records {
		if err := s.usage.UpsertUsage(ctx, contractID, models.IntervalDaily, rec); err != nil {
			return nil, fmt.Errorf("storing daily record: %w", err)
		}
	}

	agg := &models.MonthlyAggregate{
		Month:        month.Format(models.MonthLayout),
		DaysWithData: len(records),
	}
	var dollarTotal float64
	var haveDollar bool
	for _, rec := range records {
		agg.Value += rec.Value
		if agg.Unit == "" {
			agg.Unit = rec.Unit
		}
		if rec.DollarValue != nil {
			dollarTotal += *rec.DollarValue
			haveDollar = true
		}
	}
	if haveDollar {
		agg.DollarValue = &dollarTotal
	}
	agg.DailyAverage = agg.Value / float64(len(records))
	return agg, nil
}

// GetSummary builds the summary view: today, yesterday, this and last
// month, percentage comparisons, and the latest-available fallback when
// recent days have no data yet.
func (s *Service) GetSummary(ctx context.Context, contractID string) (*models.Summary, error) {
	key := cache.SummaryKey(contractID)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*models.Summary), nil
	}

	today := truncateDay(s.now())
	yesterday := today.AddDate(0, 0, -1)

	summary := &models.Summary{ContractID: contractID}
	summary.Today = s.dailyTotal(ctx, contractID, today, true)
	summary.Yesterday = s.dailyTotal(ctx, contractID, yesterday, true)

	thisMonth, err := s.getMonthAggregate(ctx, contractID, today)
	if err != nil {
		s.logger.Warn("failed to aggregate current month",
			slog.String("contract_id", contractID),
			slog.String("error", err.Error()))
	} else {
		summary.ThisMonth = thisMonth
	}

	lastMonth, err := s.getMonthAggregate(ctx, contractID, today.AddDate(0, -1, 0))
	if err != nil {
		s.logger.Warn("failed to aggregate previous month",
			slog.String("contract_id", contractID),
			slog.String("error", err.Error()))
	} else {
		summary.LastMonth = lastMonth
	}

	// Upstream lags a few days, so today and yesterday are often empty.
	// Surface the most recent days that do have data before comparing,
	// so the comparisons can use them as substitutes.
	if summary.Today == nil {
		s.fillLatestAvailable(ctx, contractID, summary)
	}

	summary.Comparisons = s.compare(ctx, contractID, today, summary)

	s.cache.Set(key, summary)
	return summary, nil
}

func (s *Service) compare(ctx context.Context, contractID string, today time.Time, summary *models.Summary) models.Comparisons {
	var cmp models.Comparisons

	// When today has nothing yet, the latest available day stands in for it
	// and the day before that stands in for yesterday.
	current, previous := summary.Today, summary.Yesterday
	refDate := today
	if current == nil && summary.LatestDay != nil {
		current, previous = summary.LatestDay, summary.PreviousDay
		refDate = truncateDay(summary.LatestDay.Timestamp)
	}

	if current != nil && previous != nil && previous.Value > 0 {
		cmp.VsYesterday = pct(current.Value, previous.Value)
	}

	// Month comparison uses daily averages so a partial current month is
	// compared fairly against a complete previous one.
	if summary.ThisMonth != nil && summary.LastMonth != nil && summary.LastMonth.DailyAverage > 0 {
		cmp.VsLastMonth = pct(summary.ThisMonth.DailyAverage, summary.LastMonth.DailyAverage)
	}

	if current != nil {
		lastWeek := s.dailyTotal(ctx, contractID, refDate.AddDate(0, 0, -7), false)
		if lastWeek != nil && lastWeek.Value > 0 {
			cmp.VsSameDayLastWeek = pct(current.Value, lastWeek.Value)
		}
	}

	return cmp
}

// fillLatestAvailable populates LatestDay/PreviousDay/DataAsOf from the
// newest stored hourly data, probing upstream backward only when the store
// is completely empty for the contract.
func (s *Service) fillLatestAvailable(ctx context.Context, contractID string, summary *models.Summary) {
	latest, err := s.usage.GetLatestDataDate(ctx, contractID, models.IntervalHourly)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to find latest data date",
			slog.String("contract_id", contractID),
			slog.String("error", err.Error()))
		return
	}

	var rec *models.UsageRecord
	if err == nil {
		rec = s.dailyTotal(ctx, contractID, latest, false)
	}

	// The newest stored day only counts if it actually recorded usage;
	// otherwise probe backward for a day that did.
	if rec == nil || rec.Value <= 0 {
		latest = s.probeLatest(ctx, contractID)
		if latest.IsZero() {
			return
		}
		rec = s.dailyTotal(ctx, contractID, latest, false)
		if rec == nil {
			return
		}
	}

	summary.LatestDay = rec
	summary.PreviousDay = s.dailyTotal(ctx, contractID, latest.AddDate(0, 0, -1), false)
	summary.DataAsOf = latest.Format(models.DateLayout)
}

// probeLatest walks backward from today asking upstream for each day until
// one has data. Used only when the store holds nothing for the contract.
func (s *Service) probeLatest(ctx context.Context, contractID string) time.Time {
	today := truncateDay(s.now())
	for i := 0; i < fallbackProbeDays; i++ {
		date := today.AddDate(0, 0, -i)
		if rec := s.dailyTotal(ctx, contractID, date, true); rec != nil && rec.Value > 0 {
			return date
		}
	}
	return time.Time{}
}

// dailyTotal answers one day database-first, optionally fetching hourly
// data from upstream on a miss. Any failure degrades to "no data".
func (s *Service) dailyTotal(ctx context.Context, contractID string, date time.Time, fetch bool) *models.UsageRecord {
	rec, err := s.usage.GetDailyTotal(ctx, contractID, date)
	if err == nil {
		return rec
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("failed to read daily total",
			slog.String("contract_id", contractID),
			slog.String("date", date.Format(models.DateLayout)),
			slog.String("error", err.Error()))
		return nil
	}
	if !fetch {
		return nil
	}

	accountID, err := s.resolveAccount(ctx, contractID)
	if err != nil {
		s.logger.Warn("failed to resolve account for fetch",
			slog.String("contract_id", contractID),
			slog.String("error", err.Error()))
		return nil
	}

	records, err := s.provider.GetHourlyUsage(ctx, contractID, accountID, date)
	if err != nil {
		s.logger.Warn("upstream fetch for daily total failed",
			slog.String("contract_id", contractID),
			slog.String("date", date.Format(models.DateLayout)),
			slog.String("error", err.Error()))
		return nil
	}
	if len(records) == 0 {
		return nil
	}

	for _, r := range records {
		if err := s.usage.UpsertUsage(ctx, contractID, models.IntervalHourly, r); err != nil {
			s.logger.Warn("failed to store fetched hourly record",
				slog.String("contract_id", contractID),
				slog.String("error", err.Error()))
			return nil
		}
	}

	hourly := buildHourly(truncateDay(date), records)
	total := &models.UsageRecord{
		Timestamp:   hourly.Date,
		Value:       hourly.TotalValue,
		Unit:        records[0].Unit,
		DollarValue: hourly.TotalDollarValue,
	}
	return total
}

// GetCurrentUsage returns the hourly breakdown for today, or for the most
// recent day with data when today has none yet.
func (s *Service) GetCurrentUsage(ctx context.Context, contractID string) (*models.HourlyUsage, error) {
	today := truncateDay(s.now())

	usage, err := s.GetHourlyUsage(ctx, contractID, today)
	if err != nil {
		return nil, err
	}
	if len(usage.Hours) > 0 {
		return usage, nil
	}

	latest, err := s.usage.GetLatestDataDate(ctx, contractID, models.IntervalHourly)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			if probed := s.probeLatest(ctx, contractID); !probed.IsZero() {
				return s.GetHourlyUsage(ctx, contractID, probed)
			}
			return usage, nil
		}
		return nil, err
	}

	return s.GetHourlyUsage(ctx, contractID, latest)
}

// GetDataStats returns per-interval stored-row statistics for a contract
func (s *Service) GetDataStats(ctx context.Context, contractID string) (models.DataStats, error) {
	return s.usage.GetDataStats(ctx, contractID)
}

// pct returns the percentage change from baseline to current, rounded to
// one decimal place.
func pct(current, baseline float64) *float64 {
	v := math.Round((current-baseline)/baseline*1000) / 10
	return &v
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
