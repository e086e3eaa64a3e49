package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wattsync/wattsync/pkg/models"
)

// timestampLayout is how record timestamps are stored in the date column.
const timestampLayout = "2006-01-02T15:04:05"

// UsageStore handles usage record persistence
type UsageStore struct {
	db *DB
}

// NewUsageStore creates a new usage store
func NewUsageStore(db *DB) *UsageStore {
	return &UsageStore{db: db}
}

// UpsertUsage writes or overwrites one usage record. The tuple
// (contract_id, date, interval) is unique; a second write with the same key
// replaces all measured fields.
func (s *UsageStore) UpsertUsage(ctx context.Context, contractID string, interval models.Interval, rec models.UsageRecord) error {
	query := `
		INSERT INTO usage_data
			(contract_id, date, interval, value, unit, dollar_value,
			 offpeak_value, offpeak_dollar_value, uncharged_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contract_id, date, interval) DO UPDATE SET
			value = excluded.value,
			unit = excluded.unit,
			dollar_value = excluded.dollar_value,
			offpeak_value = excluded.offpeak_value,
			offpeak_dollar_value = excluded.offpeak_dollar_value,
			uncharged_value = excluded.uncharged_value
	`

	_, err := s.db.ExecContext(ctx, query,
		contractID,
		rec.Timestamp.Format(timestampLayout),
		string(interval),
		rec.Value,
		rec.Unit,
		toNullFloat(rec.DollarValue),
		toNullFloat(rec.OffpeakValue),
		toNullFloat(rec.OffpeakDollarValue),
		toNullFloat(rec.UnchargedValue),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert usage: %w", err)
	}

	return nil
}

// GetUsage returns records in the inclusive range, ascending by timestamp
func (s *UsageStore) GetUsage(ctx context.Context, contractID string, start, end time.Time, interval models.Interval) ([]models.UsageRecord, error) {
	query := `
		SELECT date, value, unit, dollar_value, offpeak_value,
		       offpeak_dollar_value, uncharged_value
		FROM usage_data
		WHERE contract_id = ?
		  AND date >= ?
		  AND date <= ?
		  AND interval = ?
		ORDER BY date ASC
	`

	rows, err := s.db.QueryContext(ctx, query,
		contractID,
		start.Format(timestampLayout),
		end.Format(timestampLayout),
		string(interval),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var records []models.UsageRecord
	for rows.Next() {
		rec, err := scanUsageRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetUsageForDate returns the most recent record whose timestamp falls on
// the given calendar date, or ErrNotFound
func (s *UsageStore) GetUsageForDate(ctx context.Context, contractID string, date time.Time, interval models.Interval) (*models.UsageRecord, error) {
	query := `
		SELECT date, value, unit, dollar_value, offpeak_value,
		       offpeak_dollar_value, uncharged_value
		FROM usage_data
		WHERE contract_id = ?
		  AND date LIKE ?
		  AND interval = ?
		ORDER BY date DESC
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query,
		contractID,
		date.Format(models.DateLayout)+"%",
		string(interval),
	)

	rec, err := scanUsageRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetDailyTotal sums all hourly rows for a date into a single record.
// Returns ErrNotFound when no hourly rows exist for the date.
func (s *UsageStore) GetDailyTotal(ctx context.Context, contractID string, date time.Time) (*models.UsageRecord, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(value), 0),
		       MAX(unit),
		       SUM(dollar_value),
		       SUM(offpeak_value),
		       SUM(offpeak_dollar_value),
		       SUM(uncharged_value)
		FROM usage_data
		WHERE contract_id = ?
		  AND date LIKE ?
		  AND interval = 'hourly'
	`

	var (
		count                                      int
		total                                      float64
		unit                                       sql.NullString
		dollar, offpeak, offpeakDollar, uncharged  sql.NullFloat64
	)

	err := s.db.QueryRowContext(ctx, query,
		contractID,
		date.Format(models.DateLayout)+"%",
	).Scan(&count, &total, &unit, &dollar, &offpeak, &offpeakDollar, &uncharged)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily total: %w", err)
	}

	if count == 0 {
		return nil, ErrNotFound
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return &models.UsageRecord{
		Timestamp:          day,
		Value:              total,
		Unit:               unit.String,
		DollarValue:        fromNullFloat(dollar),
		OffpeakValue:       fromNullFloat(offpeak),
		OffpeakDollarValue: fromNullFloat(offpeakDollar),
		UnchargedValue:     fromNullFloat(uncharged),
	}, nil
}

// GetMonthlyAggregate sums all daily rows with a timestamp in the given
// YYYY-MM month. DaysWithData is the row count, not calendar days, so the
// daily average stays honest for partial months. Returns ErrNotFound when
// no daily rows exist for the month.
func (s *UsageStore) GetMonthlyAggregate(ctx context.Context, contractID, month string) (*models.MonthlyAggregate, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(SUM(value), 0),
		       MAX(unit),
		       SUM(dollar_value)
		FROM usage_data
		WHERE contract_id = ?
		  AND date LIKE ?
		  AND interval = 'daily'
	`

	var (
		count  int
		total  float64
		unit   sql.NullString
		dollar sql.NullFloat64
	)

	err := s.db.QueryRowContext(ctx, query, contractID, month+"%").
		Scan(&count, &total, &unit, &dollar)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly aggregate: %w", err)
	}

	if count == 0 {
		return nil, ErrNotFound
	}

	return &models.MonthlyAggregate{
		Month:        month,
		Value:        total,
		Unit:         unit.String,
		DollarValue:  fromNullFloat(dollar),
		DailyAverage: total / float64(count),
		DaysWithData: count,
	}, nil
}

// GetLatestDataDate returns the calendar date of the newest stored record
// for the interval, or ErrNotFound
func (s *UsageStore) GetLatestDataDate(ctx context.Context, contractID string, interval models.Interval) (time.Time, error) {
	return s.boundaryDataDate(ctx, contractID, interval, "MAX")
}

// GetOldestDataDate returns the calendar date of the oldest stored record
// for the interval, or ErrNotFound
func (s *UsageStore) GetOldestDataDate(ctx context.Context, contractID string, interval models.Interval) (time.Time, error) {
	return s.boundaryDataDate(ctx, contractID, interval, "MIN")
}

func (s *UsageStore) boundaryDataDate(ctx context.Context, contractID string, interval models.Interval, agg string) (time.Time, error) {
	query := fmt.Sprintf(`
		SELECT %s(date)
		FROM usage_data
		WHERE contract_id = ? AND interval = ?
	`, agg)

	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, query, contractID, string(interval)).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get %s data date: %w", agg, err)
	}
	if !raw.Valid {
		return time.Time{}, ErrNotFound
	}

	// Timestamps are stored as full date-times; only the calendar date matters here.
	date, err := time.Parse(models.DateLayout, raw.String[:len(models.DateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored date %q: %w", raw.String, err)
	}
	return date, nil
}

// HasDataForDate reports whether any record exists for the date and interval
func (s *UsageStore) HasDataForDate(ctx context.Context, contractID string, date time.Time, interval models.Interval) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM usage_data
			WHERE contract_id = ? AND date LIKE ? AND interval = ?
		)
	`

	var exists bool
	err := s.db.QueryRowContext(ctx, query,
		contractID,
		date.Format(models.DateLayout)+"%",
		string(interval),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check data for date: %w", err)
	}
	return exists, nil
}

// HasDataForMonth reports whether any daily record exists for the YYYY-MM month
func (s *UsageStore) HasDataForMonth(ctx context.Context, contractID, month string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM usage_data
			WHERE contract_id = ? AND date LIKE ? AND interval = 'daily'
		)
	`

	var exists bool
	err := s.db.QueryRowContext(ctx, query, contractID, month+"%").Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check data for month: %w", err)
	}
	return exists, nil
}

// GetDataStats returns per-interval row counts and date bounds for a contract
func (s *UsageStore) GetDataStats(ctx context.Context, contractID string) (models.DataStats, error) {
	query := `
		SELECT interval, COUNT(*), MIN(date), MAX(date)
		FROM usage_data
		WHERE contract_id = ?
		GROUP BY interval
	`

	rows, err := s.db.QueryContext(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to get data stats: %w", err)
	}
	defer rows.Close()

	stats := make(models.DataStats)
	for rows.Next() {
		var (
			interval       string
			count          int
			oldest, newest string
		)
		if err := rows.Scan(&interval, &count, &oldest, &newest); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats[interval] = models.IntervalStats{
			Count:  count,
			Oldest: oldest,
			Newest: newest,
		}
	}

	return stats, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanUsageRecord(sc scanner) (models.UsageRecord, error) {
	var (
		rec                                       models.UsageRecord
		raw                                       string
		dollar, offpeak, offpeakDollar, uncharged sql.NullFloat64
	)

	err := sc.Scan(&raw, &rec.Value, &rec.Unit, &dollar, &offpeak, &offpeakDollar, &uncharged)
	if err != nil {
		return models.UsageRecord{}, err
	}

	ts, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return models.UsageRecord{}, fmt.Errorf("failed to parse stored timestamp %q: %w", raw, err)
	}

	rec.Timestamp = ts
	rec.DollarValue = fromNullFloat(dollar)
	rec.OffpeakValue = fromNullFloat(offpeak)
	rec.OffpeakDollarValue = fromNullFloat(offpeakDollar)
	rec.UnchargedValue = fromNullFloat(uncharged)
	return rec, nil
}

func toNullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func fromNullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
