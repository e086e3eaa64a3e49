// Package provider defines the boundary to the upstream utility API.
// Implementations may fail, return nothing, or return malformed payloads;
// callers must treat every outcome as "possibly no data".
package provider

import (
	"context"
	"time"

	"github.com/wattsync/wattsync/pkg/models"
)

// Client fetches account identity and usage data from the utility provider.
type Client interface {
	// ListAccounts returns the accounts and contracts visible to the
	// configured credentials.
	ListAccounts(ctx context.Context) ([]models.Account, error)

	// GetHourlyUsage returns hourly records for a single calendar date.
	// An empty slice with a nil error means the upstream explicitly had
	// no data for that date.
	GetHourlyUsage(ctx context.Context, contractID, accountID string, date time.Time) ([]models.UsageRecord, error)

	// GetUsageRange returns daily-granularity records for an inclusive
	// date range.
	GetUsageRange(ctx context.Context, contractID, accountID string, start, end time.Time) ([]models.UsageRecord, error)
}
