// Package patent holds the Patent and FeeEvent entities shared by every
// pipeline stage, plus the persistence contracts they are stored through.
package patent

import (
	"strings"
	"time"
)

// NoMaintenanceCode is recorded when a fee feed line carries no event code.
const NoMaintenanceCode = "N/A"

// MaxMaintenanceCodeLen bounds FeeEvent.MaintenanceCode.
const MaxMaintenanceCodeLen = 5

// Patent is a granted US patent as assembled from the maintenance-fee feed,
// assignment data and search-API enrichment. Absent text attributes are
// empty strings.
type Patent struct {
	ID                int64
	PatentNumber      string
	ApplicationNumber string
	EntityStatus      string
	ApplicationDate   time.Time
	IssueDate         time.Time

	ReelNum              string
	FrameNum             string
	CorrespondentName    string
	CorrespondentAddress string
	AssigneeName         string
	AssigneeAddress      string
}

// FeeEvent is one maintenance-fee event recorded against a Patent.
type FeeEvent struct {
	ID              int64
	PatentID        int64
	MaintenanceDate time.Time
	MaintenanceCode string
}

// Assignment carries the fields written by the assignment reconcilers.
type Assignment struct {
	ReelNum              string
	FrameNum             string
	CorrespondentName    string
	CorrespondentAddress string
	AssigneeName         string
	AssigneeAddress      string
}

// NormalizePatentNumber strips leading zeros. Every patent number is
// normalized before it is used as a key.
func NormalizePatentNumber(number string) string {
	return strings.TrimLeft(strings.TrimSpace(number), "0")
}

// HasCorrespondent reports whether a correspondent name has been recorded.
func (p *Patent) HasCorrespondent() bool {
	return p.CorrespondentName != ""
}

// HasAssignee reports whether an assignee name has been recorded.
func (p *Patent) HasAssignee() bool {
	return p.AssigneeName != ""
}

// ApplyAssignment overwrites every assignment field of p.
func (p *Patent) ApplyAssignment(a Assignment) {
	p.ReelNum = a.ReelNum
	p.FrameNum = a.FrameNum
	p.CorrespondentName = a.CorrespondentName
	p.CorrespondentAddress = a.CorrespondentAddress
	p.AssigneeName = a.AssigneeName
	p.AssigneeAddress = a.AssigneeAddress
}

// Assignment returns the assignment fields currently held by p.
func (p *Patent) Assignment() Assignment {
	return Assignment{
		ReelNum:              p.ReelNum,
		FrameNum:             p.FrameNum,
		CorrespondentName:    p.CorrespondentName,
		CorrespondentAddress: p.CorrespondentAddress,
		AssigneeName:         p.AssigneeName,
		AssigneeAddress:      p.AssigneeAddress,
	}
}

// SameEvent reports whether e and other describe the same logical event.
func (e *FeeEvent) SameEvent(other *FeeEvent) bool {
	return e.PatentID == other.PatentID &&
		e.MaintenanceDate.Equal(other.MaintenanceDate) &&
		e.MaintenanceCode == other.MaintenanceCode
}
