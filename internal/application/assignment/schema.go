// Package assignment applies USPTO patent assignment data to stored patents.
// Two sources are supported: the one-off economics CSV dataset used to seed
// a fresh database, and the historical and daily XML archives.
package assignment

import (
	"strings"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
)

// Record fields addressable from a Schema.
const (
	FieldCorrespondentName    = "correspondent_name"
	FieldCorrespondentAddress = "correspondent_address"
	FieldReelNum              = "reel_num"
	FieldFrameNum             = "frame_num"
	FieldApplicationNumber    = "application_number"
	FieldApplicationDate      = "application_date"
	FieldPatentNumber         = "patent_number"
	FieldIssueDate            = "issue_date"
	FieldAssigneeName         = "assignee_name"
	FieldAssigneeAddress      = "assignee_address"
)

// Span maps the columns [From, To] onto a newline-joined field. To < 0
// means through the last column.
type Span struct {
	From  int
	To    int
	Field string
}

func (s Span) covers(i int) bool {
	return i >= s.From && (s.To < 0 || i <= s.To)
}

// Schema describes one CSV file of the assignment dataset. Column 0 always
// holds the record id.
type Schema struct {
	File string
	// Creates is set for the file that introduces record ids. Rows of the
	// other files only contribute to ids already present.
	Creates bool
	// Accumulate appends span lines across rows sharing an id instead of
	// starting over.
	Accumulate bool
	Columns    map[int]string
	Span       *Span
}

// Schemas of the 2019 economics dataset, in the order they are applied.
var (
	AssignmentSchema = Schema{
		File:    "assignment.csv",
		Creates: true,
		Columns: map[int]string{2: FieldCorrespondentName, 7: FieldReelNum, 8: FieldFrameNum},
		Span:    &Span{From: 3, To: 6, Field: FieldCorrespondentAddress},
	}
	DocumentIDSchema = Schema{
		File: "documentid.csv",
		Columns: map[int]string{
			3:  FieldApplicationNumber,
			4:  FieldApplicationDate,
			9:  FieldPatentNumber,
			10: FieldIssueDate,
		},
	}
	AssigneeSchema = Schema{
		File:       "assignee.csv",
		Accumulate: true,
		Columns:    map[int]string{1: FieldAssigneeName},
		Span:       &Span{From: 2, To: -1, Field: FieldAssigneeAddress},
	}

	CSVSchemas = []Schema{AssignmentSchema, DocumentIDSchema, AssigneeSchema}
)

// Record is one assignment keyed by its reel/frame record id.
type Record struct {
	ID                   string `json:"id"`
	CorrespondentName    string `json:"correspondent_name,omitempty"`
	CorrespondentAddress string `json:"correspondent_address,omitempty"`
	ReelNum              string `json:"reel_num,omitempty"`
	FrameNum             string `json:"frame_num,omitempty"`
	ApplicationNumber    string `json:"application_number,omitempty"`
	ApplicationDate      string `json:"application_date,omitempty"`
	PatentNumber         string `json:"patent_number,omitempty"`
	IssueDate            string `json:"issue_date,omitempty"`
	AssigneeName         string `json:"assignee_name,omitempty"`
	AssigneeAddress      string `json:"assignee_address,omitempty"`
}

func (r *Record) field(name string) *string {
	switch name {
	case FieldCorrespondentName:
		return &r.CorrespondentName
	case FieldCorrespondentAddress:
		return &r.CorrespondentAddress
	case FieldReelNum:
		return &r.ReelNum
	case FieldFrameNum:
		return &r.FrameNum
	case FieldApplicationNumber:
		return &r.ApplicationNumber
	case FieldApplicationDate:
		return &r.ApplicationDate
	case FieldPatentNumber:
		return &r.PatentNumber
	case FieldIssueDate:
		return &r.IssueDate
	case FieldAssigneeName:
		return &r.AssigneeName
	case FieldAssigneeAddress:
		return &r.AssigneeAddress
	}
	return nil
}

// Assignment returns the fields written onto a matching patent.
func (r *Record) Assignment() patent.Assignment {
	return patent.Assignment{
		ReelNum:              r.ReelNum,
		FrameNum:             r.FrameNum,
		CorrespondentName:    r.CorrespondentName,
		CorrespondentAddress: r.CorrespondentAddress,
		AssigneeName:         r.AssigneeName,
		AssigneeAddress:      r.AssigneeAddress,
	}
}

// joinLines appends non-blank lines to existing, newline separated.
func joinLines(existing string, lines ...string) string {
	parts := make([]string, 0, len(lines)+1)
	if existing != "" {
		parts = append(parts, existing)
	}
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "\n")
}
