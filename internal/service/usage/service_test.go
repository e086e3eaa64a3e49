package usage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattsync/wattsync/internal/cache"
	"github.com/wattsync/wattsync/internal/storage"
	"github.com/wattsync/wattsync/pkg/models"
)

// fakeProvider is a scriptable upstream double keyed by calendar date.
type fakeProvider struct {
	accounts    []models.Account
	hourly      map[string][]models.UsageRecord
	daily       []models.UsageRecord
	listErr     error
	hourlyErr   error
	hourlyCalls int
	dailyCalls  int
	listCalls   int
}

func (f *fakeProvider) ListAccounts(ctx context.Context) ([]models.Account, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.accounts, nil
}

func (f *fakeProvider) GetHourlyUsage(ctx context.Context, contractID, accountID string, date time.Time) ([]models.UsageRecord, error) {
	f.hourlyCalls++
	if f.hourlyErr != nil {
		return nil, f.hourlyErr
	}
	return f.hourly[date.Format(models.DateLayout)], nil
}

func (f *fakeProvider) GetUsageRange(ctx context.Context, contractID, accountID string, start, end time.Time) ([]models.UsageRecord, error) {
	f.dailyCalls++
	return f.daily, nil
}

func ptr(v float64) *float64 {
	return &v
}

func hourlyRecord(day time.Time, hour int, value float64) models.UsageRecord {
	return models.UsageRecord{
		Timestamp: day.Add(time.Duration(hour) * time.Hour),
		Value:     value,
		Unit:      "kWh",
	}
}

type fixture struct {
	svc      *Service
	provider *fakeProvider
	usage    *storage.UsageStore
	accounts *storage.AccountStore
	now      time.Time
}

func newFixture(t *testing.T, p *fakeProvider) *fixture {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { db.Close() })

	usageStore := storage.NewUsageStore(db)
	accountStore := storage.NewAccountStore(db)
	now := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)

	svc := New(p, usageStore, accountStore, cache.New(time.Minute),
		WithNow(func() time.Time { return now }))

	return &fixture{svc: svc, provider: p, usage: usageStore, accounts: accountStore, now: now}
}

func (f *fixture) seedContract(t *testing.T) {
	t.Helper()
	require.NoError(t, f.accounts.UpsertContract(context.Background(), "c-100", "acct-1"))
}

func (f *fixture) seedHourlyDay(t *testing.T, day time.Time, values ...float64) {
	t.Helper()
	for hour, v := range values {
		require.NoError(t, f.usage.UpsertUsage(context.Background(), "c-100",
			models.IntervalHourly, hourlyRecord(day, hour, v)))
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestService_GetAccounts_PersistsContracts(t *testing.T) {
	p := &fakeProvider{accounts: []models.Account{{
		AccountID: "acct-1",
		Contracts: []models.Contract{{ContractID: "c-100", AccountID: "acct-1"}},
	}}}
	f := newFixture(t, p)

	accounts, err := f.svc.GetAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)

	accountID, err := f.accounts.GetContractAccount(context.Background(), "c-100")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", accountID)

	// Second read is served from cache
	_, err = f.svc.GetAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.listCalls)
}

func TestService_GetAccounts_FallsBackToStore(t *testing.T) {
	p := &fakeProvider{listErr: errors.New("upstream down")}
	f := newFixture(t, p)
	f.seedContract(t)

	accounts, err := f.svc.GetAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "acct-1", accounts[0].AccountID)
	require.Len(t, accounts[0].Contracts, 1)
	assert.Equal(t, "c-100", accounts[0].Contracts[0].ContractID)
}

func TestService_GetHourlyUsage_DatabaseFirst(t *testing.T) {
	p := &fakeProvider{hourlyErr: errors.New("should not be called")}
	f := newFixture(t, p)
	f.seedContract(t)

	target := day(2026, 8, 18)
	f.seedHourlyDay(t, target, 1.0, 2.0, 3.0)

	result, err := f.svc.GetHourlyUsage(context.Background(), "c-100", target)
	require.NoError(t, err)
	require.Len(t, result.Hours, 3)
	assert.InDelta(t, 6.0, result.TotalValue, 0.0001)
	assert.Equal(t, 0, p.hourlyCalls)
}

func TestService_GetHourlyUsage_FetchesAndStoresOnMiss(t *testing.T) {
	target := day(2026, 8, 18)
	p := &fakeProvider{hourly: map[string][]models.UsageRecord{
		"2026-08-18": {hourlyRecord(target, 10, 1.5), hourlyRecord(target, 11, 2.5)},
	}}
	f := newFixture(t, p)
	f.seedContract(t)

	result, err := f.svc.GetHourlyUsage(context.Background(), "c-100", target)
	require.NoError(t, err)
	require.Len(t, result.Hours, 2)
	assert.Equal(t, 1, p.hourlyCalls)

	// The fetch was persisted
	exists, err := f.usage.HasDataForDate(context.Background(), "c-100", target, models.IntervalHourly)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestService_GetHourlyUsage_UnknownContract(t *testing.T) {
	p := &fakeProvider{hourly: map[string][]models.UsageRecord{
		"2026-08-18": {hourlyRecord(day(2026, 8, 18), 10, 1.5)},
	}}
	f := newFixture(t, p)

	_, err := f.svc.GetHourlyUsage(context.Background(), "c-999", day(2026, 8, 18))
	assert.ErrorIs(t, err, ErrUnknownContract)
}

func TestService_GetMonthlyUsage_InvalidRange(t *testing.T) {
	f := newFixture(t, &fakeProvider{})

	_, err := f.svc.GetMonthlyUsage(context.Background(), "c-100", "2026-08", "2026-01")
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = f.svc.GetMonthlyUsage(context.Background(), "c-100", "bogus", "2026-01")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestService_GetMonthlyUsage_StoredMonths(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	f.seedContract(t)

	for i := 1; i <= 5; i++ {
		require.NoError(t, f.usage.UpsertUsage(context.Background(), "c-100", models.IntervalDaily,
			models.UsageRecord{Timestamp: day(2026, 7, i), Value: 10.0, Unit: "kWh"}))
	}

	months, err := f.svc.GetMonthlyUsage(context.Background(), "c-100", "2026-07", "2026-07")
	require.NoError(t, err)
	require.Len(t, months, 1)
	assert.Equal(t, "2026-07", months[0].Month)
	assert.InDelta(t, 50.0, months[0].Value, 0.0001)
	assert.Equal(t, 5, months[0].DaysWithData)
	assert.Equal(t, 0, f.provider.dailyCalls)
}

func TestService_GetMonthlyUsage_FetchesMissingMonth(t *testing.T) {
	p := &fakeProvider{daily: []models.UsageRecord{
		{Timestamp: day(2026, 6, 1), Value: 12.0, Unit: "kWh", DollarValue: ptr(3.0)},
		{Timestamp: day(2026, 6, 2), Value: 8.0, Unit: "kWh", DollarValue: ptr(2.0)},
	}}
	f := newFixture(t, p)
	f.seedContract(t)

	months, err := f.svc.GetMonthlyUsage(context.Background(), "c-100", "2026-06", "2026-06")
	require.NoError(t, err)
	require.Len(t, months, 1)
	assert.InDelta(t, 20.0, months[0].Value, 0.0001)
	assert.InDelta(t, 10.0, months[0].DailyAverage, 0.0001)
	require.NotNil(t, months[0].DollarValue)
	assert.InDelta(t, 5.0, *months[0].DollarValue, 0.0001)
	assert.Equal(t, 1, p.dailyCalls)

	// The fetched days were persisted as daily rows
	exists, err := f.usage.HasDataForMonth(context.Background(), "c-100", "2026-06")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestService_GetSummary_Comparisons(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	f.seedContract(t)

	// today=15, yesterday=10: +50.0% on the nose
	f.seedHourlyDay(t, day(2026, 8, 20), 7.0, 8.0)
	f.seedHourlyDay(t, day(2026, 8, 19), 4.0, 6.0)

	summary, err := f.svc.GetSummary(context.Background(), "c-100")
	require.NoError(t, err)

	require.NotNil(t, summary.Today)
	assert.InDelta(t, 15.0, summary.Today.Value, 0.0001)
	require.NotNil(t, summary.Yesterday)
	assert.InDelta(t, 10.0, summary.Yesterday.Value, 0.0001)

	require.NotNil(t, summary.Comparisons.VsYesterday)
	assert.InDelta(t, 50.0, *summary.Comparisons.VsYesterday, 0.0001)

	// No fallback fields when today has data
	assert.Empty(t, summary.DataAsOf)
	assert.Nil(t, summary.LatestDay)
}

func TestService_GetSummary_ComparisonRounding(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	f.seedContract(t)

	// (16.0 - 12.3) / 12.3 * 100 = 30.081...%, rounds to 30.1
	f.seedHourlyDay(t, day(2026, 8, 20), 16.0)
	f.seedHourlyDay(t, day(2026, 8, 19), 12.3)

	summary, err := f.svc.GetSummary(context.Background(), "c-100")
	require.NoError(t, err)
	require.NotNil(t, summary.Comparisons.VsYesterday)
	assert.InDelta(t, 30.1, *summary.Comparisons.VsYesterday, 0.0001)
}

func TestService_GetSummary_ZeroBaselineSkipsComparison(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	f.seedContract(t)

	f.seedHourlyDay(t, day(2026, 8, 20), 15.0)
	f.seedHourlyDay(t, day(2026, 8, 19), 0.0)

	summary, err := f.svc.GetSummary(context.Background(), "c-100")
	require.NoError(t, err)
	assert.Nil(t, summary.Comparisons.VsYesterday)
}

func TestService_GetSummary_VsLastMonthUsesDailyAverages(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	f.seedContract(t)

	// This month: 10 days at 12/day. Last month: 31 days at 10/day.
	for i := 1; i <= 10; i++ {
		require.NoError(t, f.usage.UpsertUsage(context.Background(), "c-100", models.IntervalDaily,
			models.UsageRecord{Timestamp: day(2026, 8, i), Value: 12.0, Unit: "kWh"}))
	}
	for i := 1; i <= 31; i++ {
		require.NoError(t, f.usage.UpsertUsage(context.Background(), "c-100", models.IntervalDaily,
			models.UsageRecord{Timestamp: day(2026, 7, i), Value: 10.0, Unit: "kWh"}))
	}

	summary, err := f.svc.GetSummary(context.Background(), "c-100")
	require.NoError(t, err)

	// Averages 12 vs 10, not totals 120 vs 310
	require.NotNil(t, summary.Comparisons.VsLastMonth)
	assert.InDelta(t, 20.0, *summary.Comparisons.VsLastMonth, 0.0001)
}

func TestService_GetSummary_LatestAvailableFallback(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	f.seedContract(t)

	// The newest data is four days old, the upstream's usual lag
	f.seedHourlyDay(t, day(2026, 8, 16), 5.0, 6.0)
	f.seedHourlyDay(t, day(2026, 8, 15), 3.0, 4.0)

	summary, err := f.svc.GetSummary(context.Background(), "c-100")
	require.NoError(t, err)

	assert.Nil(t, summary.Today)
	assert.Equal(t, "2026-08-16", summary.DataAsOf)
	require.NotNil(t, summary.LatestDay)
	assert.InDelta(t, 11.0, summary.LatestDay.Value, 0.0001)
	require.NotNil(t, summary.PreviousDay)
	assert.InDelta(t, 7.0, summary.PreviousDay.Value, 0.0001)
}

func TestService_GetSummary_FallbackDaysFeedComparisons(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	f.seedContract(t)

	// Data stops three days ago; the latest and previous available days
	// stand in for today and yesterday in the comparisons
	f.seedHourlyDay(t, day(2026, 8, 17), 7.0, 8.0) // 15
	f.seedHourlyDay(t, day(2026, 8, 16), 4.0, 6.0) // 10
	f.seedHourlyDay(t, day(2026, 8, 10), 6.0, 6.0) // a week before the 17th

	summary, err := f.svc.GetSummary(context.Background(), "c-100")
	require.NoError(t, err)

	assert.Nil(t, summary.Today)
	assert.Equal(t, "2026-08-17", summary.DataAsOf)

	require.NotNil(t, summary.Comparisons.VsYesterday)
	assert.InDelta(t, 50.0, *summary.Comparisons.VsYesterday, 0.0001)

	// Same-day-last-week is anchored to the latest available day
	require.NotNil(t, summary.Comparisons.VsSameDayLastWeek)
	assert.InDelta(t, 25.0, *summary.Comparisons.VsSameDayLastWeek, 0.0001)
}

func TestService_GetSummary_SkipsZeroValueLatestDay(t *testing.T) {
	// The newest stored day recorded nothing; the probe must walk past it
	// to a day with actual usage
	p := &fakeProvider{hourly: map[string][]models.UsageRecord{
		"2026-08-16": {hourlyRecord(day(2026, 8, 16), 10, 9.0)},
	}}
	f := newFixture(t, p)
	f.seedContract(t)

	f.seedHourlyDay(t, day(2026, 8, 17), 0.0, 0.0)

	summary, err := f.svc.GetSummary(context.Background(), "c-100")
	require.NoError(t, err)

	assert.Equal(t, "2026-08-16", summary.DataAsOf)
	require.NotNil(t, summary.LatestDay)
	assert.InDelta(t, 9.0, summary.LatestDay.Value, 0.0001)
}

func TestService_GetCurrentUsage_FallsBackToLatestDay(t *testing.T) {
	f := newFixture(t, &fakeProvider{})
	f.seedContract(t)

	f.seedHourlyDay(t, day(2026, 8, 16), 5.0, 6.0)

	result, err := f.svc.GetCurrentUsage(context.Background(), "c-100")
	require.NoError(t, err)
	assert.Equal(t, day(2026, 8, 16), result.Date)
	assert.InDelta(t, 11.0, result.TotalValue, 0.0001)
}
