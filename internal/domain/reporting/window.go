// Package reporting derives the six maintenance-fee reporting sets from the
// current date. A set is an inclusive issue-date range at the 4, 8 or 12 year
// milestone, split into the late half (window start to midpoint) and the
// on-time half (midpoint to window end).
package reporting

import (
	"time"
)

// Milestones are the fee milestones in years after issue.
var Milestones = []int{4, 8, 12}

// Window is the issue-date window for one milestone.
type Window struct {
	Years    int
	Start    time.Time // Years ago
	Midpoint time.Time // Years-0.5 ago
	End      time.Time // Years-1 ago
}

// Clock returns the current time. Pipelines take a Clock so windows are
// recomputed per run.
type Clock func() time.Time

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// YearsAgo subtracts years and months from the calendar date of from. When
// the resulting month is shorter the day is clamped to the month's last day,
// so Feb 29 minus one year is Feb 28.
func YearsAgo(from time.Time, years, months int) time.Time {
	y, m, d := from.Date()
	total := y*12 + int(m) - 1 - years*12 - months
	ty, tm := total/12, time.Month(total%12+1)
	if last := daysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Windows returns the 4, 8 and 12 year windows relative to today.
func Windows(today time.Time) []Window {
	out := make([]Window, 0, len(Milestones))
	for _, n := range Milestones {
		out = append(out, Window{
			Years:    n,
			Start:    YearsAgo(today, n, 0),
			Midpoint: YearsAgo(today, n-1, 6),
			End:      YearsAgo(today, n-1, 0),
		})
	}
	return out
}
