package fees

import (
	"strings"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const (
	feedDateLayout = "20060102"
	// Application numbers in this series are design/reissue placeholders.
	discardedApplicationPrefix = "59"
	minFields                  = 5
)

// Line is one parsed record of the maintenance-fee feed.
type Line struct {
	PatentNumber      string
	ApplicationNumber string
	EntityStatus      string
	ApplicationDate   time.Time
	IssueDate         time.Time
	MaintenanceDate   time.Time
	MaintenanceCode   string
}

// ParseLine splits raw on whitespace into
// patent, application, entity status, application date, issue date and the
// optional maintenance date and code. keep is false for lines that are
// discarded by rule.
func ParseLine(raw string) (line Line, keep bool, err error) {
	f := strings.Fields(raw)
	if len(f) < minFields {
		return Line{}, false, errors.New(errors.ErrCodeParseFeeLine, "fee line has too few fields").WithDetail(raw)
	}
	if strings.HasPrefix(f[1], discardedApplicationPrefix) {
		return Line{}, false, nil
	}

	line = Line{
		PatentNumber:      patent.NormalizePatentNumber(f[0]),
		ApplicationNumber: f[1],
		EntityStatus:      f[2],
		MaintenanceCode:   patent.NoMaintenanceCode,
	}
	if line.ApplicationDate, err = parseDate(f[3], raw); err != nil {
		return Line{}, false, err
	}
	if line.IssueDate, err = parseDate(f[4], raw); err != nil {
		return Line{}, false, err
	}
	line.MaintenanceDate = line.IssueDate
	if len(f) > 5 {
		if line.MaintenanceDate, err = parseDate(f[5], raw); err != nil {
			return Line{}, false, err
		}
	}
	if len(f) > 6 {
		line.MaintenanceCode = f[6]
	}
	return line, true, nil
}

func parseDate(s, raw string) (time.Time, error) {
	if len(s) != len(feedDateLayout) {
		return time.Time{}, errors.New(errors.ErrCodeParseFeeLine, "malformed date").WithDetail(s + " in " + raw)
	}
	t, err := time.Parse(feedDateLayout, s)
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.ErrCodeParseFeeLine, "malformed date").WithDetail(s + " in " + raw)
	}
	return t, nil
}

// Patent returns the Patent row a line defines.
func (l Line) Patent() *patent.Patent {
	return &patent.Patent{
		PatentNumber:      l.PatentNumber,
		ApplicationNumber: l.ApplicationNumber,
		EntityStatus:      l.EntityStatus,
		ApplicationDate:   l.ApplicationDate,
		IssueDate:         l.IssueDate,
	}
}

// Event returns the fee event a line records against patentID.
func (l Line) Event(patentID int64) *patent.FeeEvent {
	return &patent.FeeEvent{
		PatentID:        patentID,
		MaintenanceDate: l.MaintenanceDate,
		MaintenanceCode: l.MaintenanceCode,
	}
}
