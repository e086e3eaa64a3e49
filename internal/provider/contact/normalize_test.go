package contact

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.Default()
}

func TestNormalizeUsage_ValidList(t *testing.T) {
	payload := json.RawMessage(`[
		{"date": "2026-08-20T10:00:00", "value": 1.5, "unit": "kWh", "dollarValue": 0.42},
		{"date": "2026-08-20T11:00:00", "value": 2.0, "unit": "kWh"}
	]`)

	records := normalizeUsage(payload, testLogger())
	require.Len(t, records, 2)

	assert.Equal(t, time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), records[0].Timestamp)
	assert.Equal(t, 1.5, records[0].Value)
	assert.Equal(t, "kWh", records[0].Unit)
	require.NotNil(t, records[0].DollarValue)
	assert.InDelta(t, 0.42, *records[0].DollarValue, 0.0001)

	assert.Nil(t, records[1].DollarValue)
}

func TestNormalizeUsage_StringValues(t *testing.T) {
	// Gas contracts return numbers as quoted strings
	payload := json.RawMessage(`[
		{"date": "2026-08-20T10:00:00", "value": "3.25", "unit": "kWh", "dollarValue": "0.80"}
	]`)

	records := normalizeUsage(payload, testLogger())
	require.Len(t, records, 1)
	assert.Equal(t, 3.25, records[0].Value)
	require.NotNil(t, records[0].DollarValue)
	assert.InDelta(t, 0.80, *records[0].DollarValue, 0.0001)
}

func TestNormalizeUsage_NonListPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"null", "null"},
		{"bare string", `"No usage data available"`},
		{"object", `{"message": "no data"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := normalizeUsage(json.RawMessage(tt.payload), testLogger())
			assert.Empty(t, records)
		})
	}
}

func TestNormalizeUsage_EmptyList(t *testing.T) {
	records := normalizeUsage(json.RawMessage(`[]`), testLogger())
	assert.Empty(t, records)
}

func TestNormalizeUsage_SkipsMalformedEntries(t *testing.T) {
	payload := json.RawMessage(`[
		{"date": "2026-08-20T10:00:00", "value": 1.5},
		{"date": "not-a-date", "value": 2.0},
		{"date": "2026-08-20T12:00:00"},
		{"date": "2026-08-20T13:00:00", "value": "garbage"},
		{"date": "2026-08-20T14:00:00", "value": 4.0}
	]`)

	records := normalizeUsage(payload, testLogger())
	require.Len(t, records, 2)
	assert.Equal(t, 1.5, records[0].Value)
	assert.Equal(t, 4.0, records[1].Value)
}

func TestNormalizeUsage_DateOnlyTimestamps(t *testing.T) {
	// Daily-granularity payloads carry bare dates
	payload := json.RawMessage(`[{"date": "2026-08-20", "value": 18.4, "unit": "kWh"}]`)

	records := normalizeUsage(payload, testLogger())
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), records[0].Timestamp)
}

func TestNormalizeUsage_DefaultUnit(t *testing.T) {
	payload := json.RawMessage(`[{"date": "2026-08-20T10:00:00", "value": 1.0}]`)

	records := normalizeUsage(payload, testLogger())
	require.Len(t, records, 1)
	assert.Equal(t, "kWh", records[0].Unit)
}
