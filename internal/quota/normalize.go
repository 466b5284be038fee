package quota

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"go-upstream-guard/internal/models"
)

// Older clients wrote usage under different field names. The first populated
// field of each list wins; canonical names come first.
var (
	countFields     = []string{"count", "analysisCount", "usageCount", "monthlyCount"}
	resetDateFields = []string{"lastResetDate", "resetDate", "lastReset", "periodStart"}
	tierFields      = []string{"tier", "subscriptionTier", "plan", "subscriptionStatus"}
)

// normalizeUsage converts a stored usage document of any generation into the
// canonical record. Missing or unreadable fields take the free-tier defaults
// with lastResetDate set to now.
func normalizeUsage(userID string, doc models.Document, now time.Time) models.UsageRecord {
	record := models.UsageRecord{
		UserID:        userID,
		LastResetDate: now,
		Tier:          models.TierFree,
	}

	for _, field := range countFields {
		if count, ok := toCount(doc[field]); ok {
			record.Count = count
			break
		}
	}

	for _, field := range resetDateFields {
		if ts, ok := toTime(doc[field]); ok {
			record.LastResetDate = ts
			break
		}
	}

	record.Tier = normalizeTier(doc)
	return record
}

func normalizeTier(doc models.Document) models.Tier {
	if premium, ok := doc["isPremium"].(bool); ok && premium {
		return models.TierPremium
	}

	for _, field := range tierFields {
		value, ok := doc[field].(string)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "premium", "pro", "paid", "active":
			return models.TierPremium
		default:
			return models.TierFree
		}
	}
	return models.TierFree
}

func toCount(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return clampCount(int64(n)), true
	case int64:
		return clampCount(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return clampCount(int64(n)), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return clampCount(i), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return clampCount(i), true
	}
	return 0, false
}

func clampCount(n int64) int {
	if n < 0 {
		return 0
	}
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

// toTime accepts RFC 3339 strings, unix milliseconds and time values
func toTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case float64:
		if t <= 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)), true
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(t), true
	case int:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)), true
	}
	return time.Time{}, false
}
