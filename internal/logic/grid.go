package logic

import "time"

// NextBoundary returns the first wall-clock grid point strictly after t for
// the given interval. A 15 minute interval lands on :00/:15/:30/:45 in t's
// location, independent of process start time.
func NextBoundary(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	elapsed := t.Sub(day)
	next := day.Add((elapsed/interval + 1) * interval)
	// Intervals that do not divide a day still restart at midnight.
	if nextDay := day.AddDate(0, 0, 1); next.After(nextDay) {
		return nextDay
	}
	return next
}
