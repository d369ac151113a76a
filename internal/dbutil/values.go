package dbutil

import (
	"database/sql"
	"strings"
	"time"
)

// Now returns the current time formatted the way stores persist timestamps.
func Now() string {
	return FormatTime(time.Now())
}

// FormatTime renders t as UTC RFC3339Nano.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime accepts RFC3339Nano and the SQLite default timestamp layout.
func ParseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

// NullableString maps empty strings to SQL NULL.
func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// NullableTime maps nil to SQL NULL.
func NullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return FormatTime(*value)
}

// TimePtr parses a nullable timestamp column.
func TimePtr(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := ParseTime(value.String)
	if err != nil {
		return nil
	}
	return &t
}

// BoolToInt converts b to the 0/1 form SQLite stores.
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Placeholders returns "?, ?, ..." with n markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
