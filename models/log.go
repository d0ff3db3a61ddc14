package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LogLevel is the severity of an ingested log line
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ParseLogLevel normalizes a client supplied level
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// LogEvent is a single ingested log line. It only lives in the intake buffer.
type LogEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
}

// TriggerKey identifies one intake buffer and one cooldown slot
type TriggerKey struct {
	OrganizationID string
	ServiceID      string
}

func (k TriggerKey) String() string {
	return k.OrganizationID + ":" + k.ServiceID
}

// maxEpochMillis is the last instant an epoch-millis timestamp may name
var maxEpochMillis = time.Date(9999, 12, 31, 23, 59, 59, 999e6, time.UTC).UnixMilli()

// ParseTimestamp accepts epoch milliseconds (number or numeric string) or an
// RFC3339 string. Anything else, including an empty value or a number past
// year 9999, resolves to now so a single bad field cannot block buffering.
func ParseTimestamp(raw json.RawMessage, now time.Time) time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return now
	}

	var millis float64
	if err := json.Unmarshal(raw, &millis); err == nil {
		if millis <= 0 || millis > float64(maxEpochMillis) {
			return now
		}
		return time.UnixMilli(int64(millis)).UTC()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return now
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 && n <= maxEpochMillis {
		return time.UnixMilli(n).UTC()
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC()
	}
	return now
}
