package core

import "time"

// AddMonthsSameDay returns base advanced by months calendar months, keeping
// the day of month and clamping it to the last day of the target month.
//
// Jan 31 + 1 month is Feb 28 (Feb 29 in leap years); Jan 31 + 2 months is
// Mar 31. Time of day and location are preserved.
func AddMonthsSameDay(base Date, months int) Date {
	year, month, day := base.Date()
	hour, minute, sec := base.Clock()
	loc := base.Location()

	// Anchor on the first of the month so time.Date cannot overflow into the
	// following month.
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, loc)
	last := daysIn(first.Year(), first.Month(), loc)
	if day > last {
		day = last
	}
	return Date{Time: time.Date(first.Year(), first.Month(), day, hour, minute, sec, base.Nanosecond(), loc)}
}

// DueDates returns the n due dates of a monthly series starting at base.
func DueDates(base Date, n int) []Date {
	if n < 1 {
		n = 1
	}
	dates := make([]Date, n)
	for k := range dates {
		dates[k] = AddMonthsSameDay(base, k)
	}
	return dates
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
