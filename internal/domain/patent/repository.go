package patent

import (
	"context"
	"time"

	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

// Lookup selects a single patent. Empty fields are not constrained; at least
// one field must be set.
type Lookup struct {
	ApplicationNumber string
	PatentNumber      string
}

// Repository is the persistence contract for patents.
//
// FindOne returns an error satisfying errors.IsNotFound when nothing matches
// and an errors.ErrCodeConflict error when more than one row matches. Create
// returns ErrDuplicate when the patent number is already stored.
type Repository interface {
	FindOne(ctx context.Context, l Lookup) (*Patent, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*Patent, error)
	Create(ctx context.Context, p *Patent) error
	UpdateEntityStatus(ctx context.Context, id int64, status string) error
	UpdateAssignment(ctx context.Context, id int64, a Assignment) error
	UpdateAssignee(ctx context.Context, id int64, name, address string) error

	// ListIssuedBetween returns patents whose issue date is in [from, to].
	ListIssuedBetween(ctx context.Context, from, to time.Time) ([]*Patent, error)
	ListIssuedBefore(ctx context.Context, before time.Time) ([]*Patent, error)
	// DeleteIssuedBefore removes patents issued strictly before the cutoff;
	// their fee events cascade.
	DeleteIssuedBefore(ctx context.Context, before time.Time) (int64, error)
}

// FeeEventRepository is the persistence contract for fee events.
type FeeEventRepository interface {
	Create(ctx context.Context, e *FeeEvent) error
	// GetOrCreate returns the existing event for (patent, date, code) or
	// inserts e. created reports whether a row was inserted.
	GetOrCreate(ctx context.Context, e *FeeEvent) (created bool, err error)
	ListByPatent(ctx context.Context, patentID int64) ([]*FeeEvent, error)
	// PaidPatentIDs returns ids of patents issued in [from, to] holding at
	// least one event whose code is in codes.
	PaidPatentIDs(ctx context.Context, from, to time.Time, codes []string) ([]int64, error)
}

// Transactor runs fn inside a single database transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ErrNotFound builds the not-found error for lookup l.
func ErrNotFound(l Lookup) *errors.AppError {
	return errors.New(errors.ErrCodePatentNotFound, "patent not found").
		WithDetail("application_number=" + l.ApplicationNumber + " patent_number=" + l.PatentNumber)
}

// ErrAmbiguous builds the error returned when a lookup matches several rows.
func ErrAmbiguous(l Lookup) *errors.AppError {
	return errors.New(errors.ErrCodeConflict, "lookup matched more than one patent").
		WithDetail("application_number=" + l.ApplicationNumber + " patent_number=" + l.PatentNumber)
}

// ErrDuplicate builds the error returned when Create meets an existing
// patent number.
func ErrDuplicate(number string) *errors.AppError {
	return errors.New(errors.ErrCodeConflict, "patent number already exists").WithDetail(number)
}

// IsMiss reports whether err means a lookup produced no single patent.
func IsMiss(err error) bool {
	return errors.IsNotFound(err) || errors.IsCode(err, errors.ErrCodeConflict)
}
