package utils

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// MonthLayout is the wire format for calendar months.
const MonthLayout = "2006-01"

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// returns slice removing duplicate elements
func UniqueSlice[T comparable](slice []T) []T {
	inResult := make(map[T]bool)
	var result []T
	for _, elm := range slice {
		if _, ok := inResult[elm]; !ok {
			inResult[elm] = true
			result = append(result, elm)
		}
	}
	return result
}

// safely dereference pointer of type T, nil pointer return zero value or optional default
func DereferencePtr[T any](ptr *T, defaults ...T) T {
	var defaultValue T
	if len(defaults) > 0 {
		defaultValue = defaults[0]
	}
	if ptr == nil {
		return defaultValue
	}
	return *ptr
}

// NormalizeDate drops the clock and returns the calendar date at UTC midnight.
// Ledger rows are keyed by this value.
func NormalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("date is required")
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		// accept full timestamps and keep only their date part
		ts, tsErr := time.Parse(time.RFC3339, value)
		if tsErr != nil {
			return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
		}
		return NormalizeDate(ts), nil
	}
	return t.UTC(), nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseMonth parses "YYYY-MM".
func ParseMonth(value string) (int, time.Month, error) {
	t, err := time.Parse(MonthLayout, strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid month %q, expected YYYY-MM", value)
	}
	return t.Year(), t.Month(), nil
}

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthRange returns the first and last calendar date of a month.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

// DateInMonth builds year-month-day, clamping day to the month's last day (Feb 31 -> Feb 28/29).
func DateInMonth(year int, month time.Month, day int) time.Time {
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddMonthsClamped moves t by n months keeping its day, clamped to the target month's length.
// time.AddDate would roll Jan 31 + 1 month over into March.
func AddMonthsClamped(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return DateInMonth(first.Year(), first.Month(), t.Day())
}

// MonthsBetweenCeil counts whole months from start up to (exclusive) end, rounding a partial month up.
func MonthsBetweenCeil(start, end time.Time) int {
	start, end = NormalizeDate(start), NormalizeDate(end)
	if !end.After(start) {
		return 0
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()-start.Month())
	if AddMonthsClamped(start, months).After(end) {
		months--
	}
	if AddMonthsClamped(start, months).Before(end) {
		months++
	}
	return months
}

func MinDate(a time.Time, rest ...time.Time) time.Time {
	out := a
	for _, d := range rest {
		if d.Before(out) {
			out = d
		}
	}
	return out
}

func MaxDate(a time.Time, rest ...time.Time) time.Time {
	out := a
	for _, d := range rest {
		if d.After(out) {
			out = d
		}
	}
	return out
}

// HotelTimezone is the timezone "today" is evaluated in (HOTEL_TIMEZONE, default Asia/Yangon).
func HotelTimezone() string {
	if tz := strings.TrimSpace(os.Getenv("HOTEL_TIMEZONE")); tz != "" {
		return tz
	}
	return "Asia/Yangon"
}

func ConvertToDate(t time.Time, timezone string) (time.Time, error) {
	if timezone == "" {
		timezone = HotelTimezone()
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return t, err
	}
	localTime := t.In(location)
	return time.Date(localTime.Year(), localTime.Month(), localTime.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Today is the current calendar date in the hotel timezone.
func Today() time.Time {
	d, err := ConvertToDate(time.Now(), HotelTimezone())
	if err != nil {
		return NormalizeDate(time.Now().UTC())
	}
	return d
}

// ParseDecimal converts a string to a decimal.Decimal value.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, errors.New("empty decimal string")
	}
	return decimal.NewFromString(value)
}
