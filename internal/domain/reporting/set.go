package reporting

import (
	"fmt"
	"time"

	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// SetName identifies one reporting set.
type SetName string

const (
	FourYear       SetName = "four_year"
	FourYearLate   SetName = "four_year_late"
	EightYear      SetName = "eight_year"
	EightYearLate  SetName = "eight_year_late"
	TwelveYear     SetName = "twelve_year"
	TwelveYearLate SetName = "twelve_year_late"
)

// OrderedSets lists every set in display order.
var OrderedSets = []SetName{FourYear, FourYearLate, EightYear, EightYearLate, TwelveYear, TwelveYearLate}

// routeSets maps front-end route ids to set names.
var routeSets = map[string]SetName{
	"1": FourYear,
	"2": FourYearLate,
	"3": EightYear,
	"4": EightYearLate,
	"5": TwelveYear,
	"6": TwelveYearLate,
}

// milestoneDigit is the trailing digit of the payment codes for a milestone.
var milestoneDigit = map[int]string{4: "1", 8: "2", 12: "3"}

var setMilestone = map[SetName]int{
	FourYear: 4, FourYearLate: 4,
	EightYear: 8, EightYearLate: 8,
	TwelveYear: 12, TwelveYearLate: 12,
}

// ParseSet accepts either a set name or its route id ("1".."6").
func ParseSet(s string) (SetName, error) {
	if name, ok := routeSets[s]; ok {
		return name, nil
	}
	if _, ok := setMilestone[SetName(s)]; ok {
		return SetName(s), nil
	}
	return "", errors.New(errors.ErrCodeReportingSetUnknown, "unknown reporting set").WithDetail(s)
}

// Milestone returns the fee milestone in years for the set.
func (n SetName) Milestone() int {
	return setMilestone[n]
}

// Late reports whether the set is the late half of its window.
func (n SetName) Late() bool {
	switch n {
	case FourYearLate, EightYearLate, TwelveYearLate:
		return true
	}
	return false
}

// PaymentCodes returns the fee codes that count as paid for the set:
// M<entity size 1..3>55<milestone digit>.
func (n SetName) PaymentCodes() []string {
	digit := milestoneDigit[n.Milestone()]
	codes := make([]string, 0, 3)
	for size := 1; size <= 3; size++ {
		codes = append(codes, fmt.Sprintf("M%d55%s", size, digit))
	}
	return codes
}

// Set is a named inclusive issue-date range.
type Set struct {
	Name SetName
	From time.Time
	To   time.Time
}

// Sets expands the windows for today into the six named sets, in
// OrderedSets order.
func Sets(today time.Time) []Set {
	out := make([]Set, 0, len(OrderedSets))
	for _, w := range Windows(today) {
		onTime, late := namesFor(w.Years)
		out = append(out,
			Set{Name: onTime, From: w.Midpoint, To: w.End},
			Set{Name: late, From: w.Start, To: w.Midpoint},
		)
	}
	return out
}

func namesFor(years int) (onTime, late SetName) {
	switch years {
	case 4:
		return FourYear, FourYearLate
	case 8:
		return EightYear, EightYearLate
	default:
		return TwelveYear, TwelveYearLate
	}
}

// Find returns the set named n.
func Find(sets []Set, n SetName) (Set, bool) {
	for _, s := range sets {
		if s.Name == n {
			return s, true
		}
	}
	return Set{}, false
}
