package contact

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/wattsync/wattsync/pkg/models"
)

// Timestamp layouts seen in upstream payloads, most common first.
var datumLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// normalizeUsage converts a raw usage payload into canonical records.
//
// The upstream is unreliable: the payload may be a proper list, an empty
// list, null, or a bare string (common for gas contracts). None of those are
// errors - anything that is not a list normalizes to an empty result so the
// sync layer can distinguish "no data" from "call failed". Malformed entries
// inside an otherwise valid list are logged and skipped, never fatal.
func normalizeUsage(payload json.RawMessage, logger *slog.Logger) []models.UsageRecord {
	if len(payload) == 0 {
		return nil
	}

	if !looksLikeList(payload) {
		logger.Debug("upstream returned non-list usage payload, treating as empty",
			slog.String("payload_prefix", payloadPrefix(payload)))
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(payload, &entries); err != nil {
		logger.Debug("upstream usage payload not decodable as list, treating as empty",
			slog.String("error", err.Error()))
		return nil
	}

	records := make([]models.UsageRecord, 0, len(entries))
	for i, entry := range entries {
		var datum rawDatum
		if err := json.Unmarshal(entry, &datum); err != nil {
			logger.Warn("skipping malformed usage entry",
				slog.Int("index", i),
				slog.String("error", err.Error()))
			continue
		}

		rec, ok := toRecord(datum)
		if !ok {
			logger.Warn("skipping usage entry with unusable date or value",
				slog.Int("index", i),
				slog.String("date", datum.Date))
			continue
		}
		records = append(records, rec)
	}

	return records
}

func toRecord(datum rawDatum) (models.UsageRecord, bool) {
	if datum.Value == nil {
		return models.UsageRecord{}, false
	}

	ts, ok := parseDatumTime(datum.Date)
	if !ok {
		return models.UsageRecord{}, false
	}

	unit := datum.Unit
	if unit == "" {
		unit = "kWh"
	}

	return models.UsageRecord{
		Timestamp:          ts,
		Value:              float64(*datum.Value),
		Unit:               unit,
		DollarValue:        datum.DollarValue.ptr(),
		OffpeakValue:       datum.OffpeakValue.ptr(),
		OffpeakDollarValue: datum.OffpeakDollarValue.ptr(),
		UnchargedValue:     datum.UnchargedValue.ptr(),
	}, true
}

func parseDatumTime(raw string) (time.Time, bool) {
	for _, layout := range datumLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func payloadPrefix(payload json.RawMessage) string {
	const max = 64
	if len(payload) > max {
		return string(payload[:max])
	}
	return string(payload)
}
