package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattsync/wattsync/pkg/models"
)

func ptr(v float64) *float64 {
	return &v
}

func hourlyRecord(day time.Time, hour int, value float64) models.UsageRecord {
	return models.UsageRecord{
		Timestamp:   day.Add(time.Duration(hour) * time.Hour),
		Value:       value,
		Unit:        "kWh",
		DollarValue: ptr(value * 0.25),
	}
}

func TestUsageStore_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	rec := hourlyRecord(day, 10, 1.5)

	err := store.UpsertUsage(ctx, "c-100", models.IntervalHourly, rec)
	require.NoError(t, err)

	records, err := store.GetUsage(ctx, "c-100", day, day.Add(24*time.Hour-time.Second), models.IntervalHourly)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, rec.Timestamp, records[0].Timestamp)
	assert.Equal(t, 1.5, records[0].Value)
	assert.Equal(t, "kWh", records[0].Unit)
	require.NotNil(t, records[0].DollarValue)
	assert.InDelta(t, 0.375, *records[0].DollarValue, 0.0001)
	assert.Nil(t, records[0].OffpeakValue)
}

func TestUsageStore_UpsertOverwrites(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	rec := hourlyRecord(day, 10, 1.5)

	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, rec))

	// Same key, revised value
	rec.Value = 2.0
	rec.DollarValue = nil
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, rec))

	records, err := store.GetUsage(ctx, "c-100", day, day.Add(24*time.Hour-time.Second), models.IntervalHourly)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2.0, records[0].Value)
	assert.Nil(t, records[0].DollarValue)
}

func TestUsageStore_IntervalsAreIndependent(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, hourlyRecord(day, 0, 1.0)))
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalDaily, models.UsageRecord{
		Timestamp: day, Value: 24.0, Unit: "kWh",
	}))

	hourly, err := store.GetUsage(ctx, "c-100", day, day.Add(24*time.Hour-time.Second), models.IntervalHourly)
	require.NoError(t, err)
	assert.Len(t, hourly, 1)
	assert.Equal(t, 1.0, hourly[0].Value)

	daily, err := store.GetUsage(ctx, "c-100", day, day, models.IntervalDaily)
	require.NoError(t, err)
	assert.Len(t, daily, 1)
	assert.Equal(t, 24.0, daily[0].Value)
}

func TestUsageStore_GetDailyTotal(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	for hour, value := range map[int]float64{0: 1.0, 12: 2.5, 23: 0.5} {
		require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, hourlyRecord(day, hour, value)))
	}

	total, err := store.GetDailyTotal(ctx, "c-100", day)
	require.NoError(t, err)
	assert.Equal(t, day, total.Timestamp)
	assert.InDelta(t, 4.0, total.Value, 0.0001)
	assert.Equal(t, "kWh", total.Unit)
	require.NotNil(t, total.DollarValue)
	assert.InDelta(t, 1.0, *total.DollarValue, 0.0001)
}

func TestUsageStore_GetDailyTotal_NoData(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)

	_, err := store.GetDailyTotal(context.Background(), "c-100", time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUsageStore_GetDailyTotal_AllCostsAbsent(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, models.UsageRecord{
		Timestamp: day.Add(3 * time.Hour), Value: 1.0, Unit: "kWh",
	}))

	total, err := store.GetDailyTotal(ctx, "c-100", day)
	require.NoError(t, err)

	// SUM over only-NULL inputs must stay absent, not become zero
	assert.Nil(t, total.DollarValue)
	assert.Nil(t, total.OffpeakValue)
}

func TestUsageStore_GetMonthlyAggregate(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	// 10 daily rows in a partial month
	for i := 1; i <= 10; i++ {
		day := time.Date(2026, 7, i, 0, 0, 0, 0, time.UTC)
		require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalDaily, models.UsageRecord{
			Timestamp: day, Value: 10.0, Unit: "kWh", DollarValue: ptr(2.5),
		}))
	}

	agg, err := store.GetMonthlyAggregate(ctx, "c-100", "2026-07")
	require.NoError(t, err)
	assert.Equal(t, "2026-07", agg.Month)
	assert.InDelta(t, 100.0, agg.Value, 0.0001)
	assert.Equal(t, 10, agg.DaysWithData)

	// Average over days with data, not calendar days
	assert.InDelta(t, 10.0, agg.DailyAverage, 0.0001)
	require.NotNil(t, agg.DollarValue)
	assert.InDelta(t, 25.0, *agg.DollarValue, 0.0001)
}

func TestUsageStore_GetMonthlyAggregate_NoData(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)

	_, err := store.GetMonthlyAggregate(context.Background(), "c-100", "2026-07")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUsageStore_DataDateBoundaries(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	oldest := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	newest := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, hourlyRecord(oldest, 5, 1.0)))
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, hourlyRecord(newest, 5, 1.0)))

	got, err := store.GetOldestDataDate(ctx, "c-100", models.IntervalHourly)
	require.NoError(t, err)
	assert.Equal(t, oldest, got)

	got, err = store.GetLatestDataDate(ctx, "c-100", models.IntervalHourly)
	require.NoError(t, err)
	assert.Equal(t, newest, got)

	_, err = store.GetLatestDataDate(ctx, "c-100", models.IntervalDaily)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUsageStore_HasDataForDate(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, hourlyRecord(day, 5, 1.0)))

	exists, err := store.HasDataForDate(ctx, "c-100", day, models.IntervalHourly)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.HasDataForDate(ctx, "c-100", day.AddDate(0, 0, -1), models.IntervalHourly)
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = store.HasDataForDate(ctx, "c-999", day, models.IntervalHourly)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUsageStore_HasDataForMonth(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	day := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalDaily, models.UsageRecord{
		Timestamp: day, Value: 10.0, Unit: "kWh",
	}))

	exists, err := store.HasDataForMonth(ctx, "c-100", "2026-07")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.HasDataForMonth(ctx, "c-100", "2026-06")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUsageStore_GetDataStats(t *testing.T) {
	db := newTestDB(t)
	store := NewUsageStore(db)
	ctx := context.Background()

	day := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, hourlyRecord(day, 0, 1.0)))
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalHourly, hourlyRecord(day, 1, 1.0)))
	require.NoError(t, store.UpsertUsage(ctx, "c-100", models.IntervalDaily, models.UsageRecord{
		Timestamp: day, Value: 2.0, Unit: "kWh",
	}))

	stats, err := store.GetDataStats(ctx, "c-100")
	require.NoError(t, err)
	assert.Equal(t, 2, stats["hourly"].Count)
	assert.Equal(t, 1, stats["daily"].Count)

	// Unknown contract yields empty stats, not an error
	stats, err = store.GetDataStats(ctx, "c-999")
	require.NoError(t, err)
	assert.Empty(t, stats)
}
