package models

import "time"

// Interval identifies the granularity of a usage record.
type Interval string

const (
	// IntervalHourly marks records covering a single hour.
	IntervalHourly Interval = "hourly"
	// IntervalDaily marks records covering a whole day.
	IntervalDaily Interval = "daily"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// MonthLayout is the wire format for calendar months.
const MonthLayout = "2006-01"

// UsageRecord is a single consumption observation for a contract.
// Timestamp carries date+hour for hourly records and midnight for daily
// records. Optional cost fields are pointers so that "not reported" stays
// distinguishable from zero.
type UsageRecord struct {
	Timestamp          time.Time `json:"date"`
	Value              float64   `json:"value"`
	Unit               string    `json:"unit"`
	DollarValue        *float64  `json:"dollar_value,omitempty"`
	OffpeakValue       *float64  `json:"offpeak_value,omitempty"`
	OffpeakDollarValue *float64  `json:"offpeak_dollar_value,omitempty"`
	UnchargedValue     *float64  `json:"uncharged_value,omitempty"`
}

// HourlyUsage is the hourly breakdown for one day plus computed totals.
type HourlyUsage struct {
	Date             time.Time     `json:"date"`
	Hours            []UsageRecord `json:"hours"`
	TotalValue       float64       `json:"total_value"`
	TotalDollarValue *float64      `json:"total_dollar_value,omitempty"`
}

// MonthlyAggregate is the derived view over a month's daily records.
// DaysWithData counts rows actually present, not calendar days, so partial
// months report an honest daily average.
type MonthlyAggregate struct {
	Month        string   `json:"month"`
	Value        float64  `json:"value"`
	Unit         string   `json:"unit"`
	DollarValue  *float64 `json:"dollar_value,omitempty"`
	DailyAverage float64  `json:"daily_average"`
	DaysWithData int      `json:"days_with_data"`
}

// Comparisons holds percentage changes between periods. A nil field means
// the comparison could not be computed (missing or zero baseline).
type Comparisons struct {
	VsYesterday       *float64 `json:"vs_yesterday,omitempty"`
	VsLastMonth       *float64 `json:"vs_last_month,omitempty"`
	VsSameDayLastWeek *float64 `json:"vs_same_day_last_week,omitempty"`
}

// Summary is the richest derived view for a contract. When today/yesterday
// have no data yet (the upstream lags a few days), LatestDay and PreviousDay
// carry the most recent days that do, and DataAsOf names the date of
// LatestDay.
type Summary struct {
	ContractID  string            `json:"contract_id"`
	Today       *UsageRecord      `json:"today,omitempty"`
	Yesterday   *UsageRecord      `json:"yesterday,omitempty"`
	ThisMonth   *MonthlyAggregate `json:"this_month,omitempty"`
	LastMonth   *MonthlyAggregate `json:"last_month,omitempty"`
	Comparisons Comparisons       `json:"comparisons"`
	LatestDay   *UsageRecord      `json:"latest_day,omitempty"`
	PreviousDay *UsageRecord      `json:"previous_day,omitempty"`
	DataAsOf    string            `json:"data_as_of,omitempty"`
}

// IntervalStats describes the stored rows for one interval of a contract.
type IntervalStats struct {
	Count  int    `json:"count"`
	Oldest string `json:"oldest"`
	Newest string `json:"newest"`
}

// DataStats maps interval name ("hourly", "daily") to stored-row statistics.
type DataStats map[string]IntervalStats
