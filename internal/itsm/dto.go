package itsm

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// sessionDTO is the provider's response to the session-init exchange.
type sessionDTO struct {
	SessionToken string `json:"session_token"`
}

// searchDTO is the top-level container for provider search results. Rows are
// loosely typed: each row maps a numeric field ID (as a string key) to an
// arbitrary JSON value.
type searchDTO struct {
	TotalCount int      `json:"totalcount"`
	Count      int      `json:"count"`
	Data       []RowDTO `json:"data"`
}

// RowDTO is a single search result row keyed by provider field ID.
type RowDTO map[string]json.RawMessage

// searchOptionDTO describes one entry of the schema/search-options endpoint.
// The provider mixes these with non-object metadata entries under the same
// top-level map, so rows that fail to decode as objects are skipped.
type searchOptionDTO struct {
	Name  string `json:"name"`
	Table string `json:"table"`
	Field string `json:"field"`
	UID   string `json:"uid"`
}

// providerTime is the timestamp layout used in search result rows.
const providerTime = "2006-01-02 15:04:05"

// ParseTime parses the provider's timestamp format.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(providerTime, s)
}

// asString decodes a raw row value into a string, tolerating numbers.
func asString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

// asInt decodes a raw row value into an int, tolerating quoted numbers.
func asInt(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, convErr := strconv.Atoi(strings.TrimSpace(s)); convErr == nil {
			return v, true
		}
	}
	return 0, false
}

// asTime decodes a raw row value into a timestamp, if present.
func asTime(raw json.RawMessage) (time.Time, bool) {
	s := asString(raw)
	if s == "" {
		return time.Time{}, false
	}
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
