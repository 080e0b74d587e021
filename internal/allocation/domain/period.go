package allocation

import "time"

// MonthKeyLayout is the storage and report representation of a month.
const MonthKeyLayout = "2006-01"

// MonthStart truncates t to the first instant of its month in UTC.
// Every month used as a map key goes through it so keys compare equal.
func MonthStart(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsOfYear returns the twelve month starts of a calendar year.
func MonthsOfYear(year int) []time.Time {
	months := make([]time.Time, 0, 12)
	for m := time.January; m <= time.December; m++ {
		months = append(months, time.Date(year, m, 1, 0, 0, 0, 0, time.UTC))
	}
	return months
}

// FormatMonth renders a month as YYYY-MM.
func FormatMonth(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(MonthKeyLayout)
}

// YearBounds returns [start, end) of a calendar year.
func YearBounds(year int) (time.Time, time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(1, 0, 0)
}
