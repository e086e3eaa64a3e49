package models

import "time"

// SyncStats is the per-contract outcome of one sync or backfill pass.
// Per-item failures are collected in Errors; the pass itself still counts
// as completed.
type SyncStats struct {
	ContractID        string   `json:"contract_id"`
	HourlyDaysSynced  int      `json:"hourly_days_synced"`
	HourlyDaysSkipped int      `json:"hourly_days_skipped"`
	HourlyDaysEmpty   int      `json:"hourly_days_empty"`
	MonthsSynced      int      `json:"months_synced"`
	MonthsSkipped     int      `json:"months_skipped"`
	OldestDataDate    string   `json:"oldest_data_date,omitempty"`
	Errors            []string `json:"errors"`
}

// Changed reports whether the pass wrote any new data for the contract.
func (s SyncStats) Changed() bool {
	return s.HourlyDaysSynced > 0 || s.MonthsSynced > 0
}

// BackfillProgress is a point-in-time snapshot of a running adaptive
// backfill for one contract, polled via the sync status endpoint.
type BackfillProgress struct {
	DaysProcessed  int       `json:"days_processed"`
	CurrentDate    string    `json:"current_date,omitempty"`
	HourlySynced   int       `json:"hourly_synced"`
	HourlyEmpty    int       `json:"hourly_empty"`
	OldestDataDate string    `json:"oldest_data_date,omitempty"`
	Status         string    `json:"status"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Backfill progress states.
const (
	BackfillInProgress = "in_progress"
	BackfillCompleted  = "completed"
)

// SyncStatus is the response shape for sync status queries.
type SyncStatus struct {
	Running  bool                        `json:"running"`
	Progress map[string]BackfillProgress `json:"progress"`
}
