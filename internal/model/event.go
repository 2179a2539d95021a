package model

import (
	"strconv"
	"strings"
	"time"
)

// Canonical field names for activity rows. Collectors map their raw
// columns onto these before events reach the engine.
const (
	FieldUserID     = "user_id"
	FieldUsername   = "username"
	FieldTimestamp  = "timestamp"
	FieldEventType  = "event_type"
	FieldSessionKey = "session_key"
	FieldClientIP   = "client_ip"
)

// Event is a flat field bag. Rows arrive already parsed; the engine
// only reads them through the accessors below.
type Event map[string]string

func (e Event) UserID() string     { return strings.TrimSpace(e[FieldUserID]) }
func (e Event) Username() string   { return strings.TrimSpace(e[FieldUsername]) }
func (e Event) EventType() string  { return strings.TrimSpace(e[FieldEventType]) }
func (e Event) SessionKey() string { return strings.TrimSpace(e[FieldSessionKey]) }
func (e Event) ClientIP() string   { return strings.TrimSpace(e[FieldClientIP]) }

// Field returns an arbitrary rule-specific field value.
func (e Event) Field(name string) string { return strings.TrimSpace(e[name]) }

// Timestamp parses the event time. ok is false when the field is
// missing or unparseable; dependent logic must no-op for that event.
func (e Event) Timestamp() (time.Time, bool) {
	ts, err := ParseTimestamp(e[FieldTimestamp])
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// Date returns the event day as YYYY-MM-DD, or "" for malformed rows.
func (e Event) Date() string {
	ts, ok := e.Timestamp()
	if !ok {
		return ""
	}
	return ts.UTC().Format("2006-01-02")
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// ParseTimestamp accepts the timestamp formats collectors emit,
// including unix seconds and milliseconds.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errEmptyTimestamp
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &timestampError{value: value}
}

var errEmptyTimestamp = &timestampError{value: ""}

type timestampError struct {
	value string
}

func (e *timestampError) Error() string {
	if e.value == "" {
		return "empty timestamp"
	}
	return "unsupported timestamp format: " + strconv.Quote(e.value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
