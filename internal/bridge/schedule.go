package bridge

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// WireTimeLayout is the one representation schedule times take on the wire.
const WireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// maxEpochMillis bounds epoch values to the range a browser Date accepts.
const maxEpochMillis = 8.64e15

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseScheduleTime accepts epoch milliseconds (any Go number, json.Number or
// numeric string), an RFC 3339 string, a zone-less date-time (read in the
// local zone), a bare date (read as UTC midnight) or a time.Time.
func ParseScheduleTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, &ValidationError{Field: "scheduledAt", Reason: "missing"}
	case time.Time:
		if t.IsZero() {
			return time.Time{}, &ValidationError{Field: "scheduledAt", Reason: "zero time"}
		}
		return t, nil
	case *time.Time:
		if t == nil {
			return time.Time{}, &ValidationError{Field: "scheduledAt", Reason: "missing"}
		}
		return ParseScheduleTime(*t)
	case int:
		return fromEpochMillis(float64(t))
	case int32:
		return fromEpochMillis(float64(t))
	case int64:
		return fromEpochMillis(float64(t))
	case uint64:
		return fromEpochMillis(float64(t))
	case float32:
		return fromEpochMillis(float64(t))
	case float64:
		return fromEpochMillis(t)
	case json.Number:
		return parseScheduleString(t.String())
	case string:
		return parseScheduleString(t)
	default:
		return time.Time{}, &ValidationError{Field: "scheduledAt", Reason: "unsupported type"}
	}
}

func parseScheduleString(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &ValidationError{Field: "scheduledAt", Reason: "empty"}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpochMillis(f)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, &ValidationError{Field: "scheduledAt", Reason: "unparseable time " + strconv.Quote(s)}
}

func fromEpochMillis(ms float64) (time.Time, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, &ValidationError{Field: "scheduledAt", Reason: "not a finite number"}
	}
	if math.Abs(ms) > maxEpochMillis {
		return time.Time{}, &ValidationError{Field: "scheduledAt", Reason: "out of range"}
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// FormatWireTime renders t in WireTimeLayout, in UTC.
func FormatWireTime(t time.Time) string {
	return t.UTC().Format(WireTimeLayout)
}

// NormalizeScheduleTime parses v and checks it lies strictly after now.
func NormalizeScheduleTime(v any, now time.Time) (string, error) {
	t, err := ParseScheduleTime(v)
	if err != nil {
		return "", err
	}
	if !t.After(now) {
		return "", &ValidationError{Field: "scheduledAt", Reason: "must be in the future"}
	}
	return FormatWireTime(t), nil
}
