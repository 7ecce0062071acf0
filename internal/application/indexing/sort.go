package indexing

import (
	"sort"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
)

// Sort fields offered by the read API. Each is stored ascending under its
// name and descending under "-" + name.
const (
	SortPatentNumber      = "patent_number"
	SortIssueDate         = "issue_date"
	SortApplicationNumber = "application_number"
	SortApplicationDate   = "application_date"
	SortAssigneeName      = "pat_assignee_name"
	SortCorrespondentName = "correspondent_name"
)

// SortFields lists every sort field in a stable order.
var SortFields = []string{
	SortPatentNumber,
	SortIssueDate,
	SortApplicationNumber,
	SortApplicationDate,
	SortAssigneeName,
	SortCorrespondentName,
}

// nameFields keep patents with a value ahead of blanks in both directions.
var nameFields = map[string]bool{
	SortAssigneeName:      true,
	SortCorrespondentName: true,
}

// Descending returns the descending key of field.
func Descending(field string) string { return "-" + field }

// IsSortKey reports whether key names an ascending or descending order.
func IsSortKey(key string) bool {
	if len(key) > 0 && key[0] == '-' {
		key = key[1:]
	}
	for _, f := range SortFields {
		if f == key {
			return true
		}
	}
	return false
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareField(field string, a, b *patent.Patent) int {
	switch field {
	case SortPatentNumber:
		return compareStrings(a.PatentNumber, b.PatentNumber)
	case SortIssueDate:
		return compareTimes(a.IssueDate, b.IssueDate)
	case SortApplicationNumber:
		return compareStrings(a.ApplicationNumber, b.ApplicationNumber)
	case SortApplicationDate:
		return compareTimes(a.ApplicationDate, b.ApplicationDate)
	case SortAssigneeName:
		return compareStrings(a.AssigneeName, b.AssigneeName)
	case SortCorrespondentName:
		return compareStrings(a.CorrespondentName, b.CorrespondentName)
	}
	return 0
}

func nameValue(field string, p *patent.Patent) string {
	if field == SortAssigneeName {
		return p.AssigneeName
	}
	return p.CorrespondentName
}

// Orders returns the ascending and descending id lists for field.
//
// For ordinary fields descending is the exact reverse of ascending. For name
// fields both orders list patents with a value first; ties fall back to id
// ascending.
func Orders(field string, patents []*patent.Patent) (asc, desc []int64) {
	sorted := make([]*patent.Patent, len(patents))
	copy(sorted, patents)

	if !nameFields[field] {
		sort.SliceStable(sorted, func(i, j int) bool {
			if c := compareField(field, sorted[i], sorted[j]); c != 0 {
				return c < 0
			}
			return sorted[i].ID < sorted[j].ID
		})
		asc = ids(sorted)
		desc = make([]int64, len(asc))
		for i, id := range asc {
			desc[len(asc)-1-i] = id
		}
		return asc, desc
	}

	byName := func(direction int) []int64 {
		sort.SliceStable(sorted, func(i, j int) bool {
			vi, vj := nameValue(field, sorted[i]) != "", nameValue(field, sorted[j]) != ""
			if vi != vj {
				return vi
			}
			if c := compareField(field, sorted[i], sorted[j]) * direction; c != 0 {
				return c < 0
			}
			return sorted[i].ID < sorted[j].ID
		})
		return ids(sorted)
	}
	return byName(1), byName(-1)
}

func ids(patents []*patent.Patent) []int64 {
	out := make([]int64, len(patents))
	for i, p := range patents {
		out[i] = p.ID
	}
	return out
}
