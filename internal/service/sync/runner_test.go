package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wattsync/wattsync/pkg/models"
)

func TestRunner_StartStop(t *testing.T) {
	f := newFixture(t, &fakeProvider{}, testSyncConfig())

	cfg := testSyncConfig()
	cfg.WarmupDelay = time.Hour // never fires during the test
	cfg.Interval = time.Hour

	runner := NewRunner(f.orch, cfg, nil)
	runner.Start()

	// Stop during warmup must not hang
	done := make(chan struct{})
	go func() {
		runner.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop")
	}

	// Stopping again is a no-op
	runner.Stop()
}

func TestRunner_BootstrapBackfillsEmptyStore(t *testing.T) {
	p := &fakeProvider{hourly: map[string][]models.UsageRecord{
		"2026-08-15": hourlyDay(day(2026, 8, 15), 1.0),
	}}
	f := newFixture(t, p, testSyncConfig())

	cfg := testSyncConfig()
	cfg.WarmupDelay = time.Millisecond
	cfg.Interval = time.Hour

	runner := NewRunner(f.orch, cfg, nil)
	runner.Start()
	defer runner.Stop()

	// An empty store triggers an adaptive backfill on startup
	require.Eventually(t, func() bool {
		status := f.orch.Status()
		if status.Running {
			return false
		}
		progress, ok := status.Progress["c-100"]
		return ok && progress.Status == models.BackfillCompleted
	}, 5*time.Second, 10*time.Millisecond)

	exists, err := f.usage.HasDataForDate(context.Background(), "c-100",
		day(2026, 8, 15), models.IntervalHourly)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunner_BootstrapSyncsWhenHistoryExists(t *testing.T) {
	p := &fakeProvider{hourly: map[string][]models.UsageRecord{
		"2026-08-19": hourlyDay(day(2026, 8, 19), 1.0),
	}}
	f := newFixture(t, p, testSyncConfig())
	ctx := context.Background()

	// Existing history means bootstrap runs a regular sync, not a backfill
	for _, rec := range hourlyDay(day(2026, 8, 18), 2.0) {
		require.NoError(t, f.usage.UpsertUsage(ctx, "c-100", models.IntervalHourly, rec))
	}

	cfg := testSyncConfig()
	cfg.WarmupDelay = time.Millisecond
	cfg.Interval = time.Hour

	runner := NewRunner(f.orch, cfg, nil)
	runner.Start()
	defer runner.Stop()

	require.Eventually(t, func() bool {
		exists, err := f.usage.HasDataForDate(ctx, "c-100", day(2026, 8, 19), models.IntervalHourly)
		return err == nil && exists
	}, 5*time.Second, 10*time.Millisecond)

	// No backfill progress was recorded
	assert.Empty(t, f.orch.Status().Progress)
}
