package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/postgres"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

const patentColumns = `id, patent_number, application_number, entity_status, application_date, issue_date,
	reel_num, frame_num, correspondent_name, correspondent_address, pat_assignee_name, pat_assignee_address`

type postgresPatentRepo struct {
	baseRepo
}

// NewPostgresPatentRepo returns the patents table repository.
func NewPostgresPatentRepo(conn *postgres.Connection, log logging.Logger) patent.Repository {
	return &postgresPatentRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

func (r *postgresPatentRepo) FindOne(ctx context.Context, l patent.Lookup) (*patent.Patent, error) {
	var (
		conds []string
		args  []interface{}
	)
	if l.ApplicationNumber != "" {
		args = append(args, l.ApplicationNumber)
		conds = append(conds, "application_number = "+placeholders(len(args), 1))
	}
	if l.PatentNumber != "" {
		args = append(args, l.PatentNumber)
		conds = append(conds, "patent_number = "+placeholders(len(args), 1))
	}
	if len(conds) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "patent lookup needs an application or patent number")
	}

	query := "SELECT " + patentColumns + " FROM patents WHERE " + strings.Join(conds, " AND ") + " LIMIT 2"
	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to look up patent")
	}
	found, err := scanPatents(rows)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, patent.ErrNotFound(l)
	case 1:
		return found[0], nil
	default:
		return nil, patent.ErrAmbiguous(l)
	}
}

func (r *postgresPatentRepo) FindByIDs(ctx context.Context, ids []int64) ([]*patent.Patent, error) {
	out := make([]*patent.Patent, 0, len(ids))
	for start := 0; start < len(ids); start += inChunk {
		end := start + inChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := "SELECT " + patentColumns + " FROM patents WHERE id IN (" + placeholders(1, len(chunk)) + ") ORDER BY id"
		rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to load patents by id")
		}
		batch, err := scanPatents(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (r *postgresPatentRepo) Create(ctx context.Context, p *patent.Patent) error {
	query := `
		INSERT INTO patents (
			patent_number, application_number, entity_status, application_date, issue_date,
			reel_num, frame_num, correspondent_name, correspondent_address, pat_assignee_name, pat_assignee_address
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := r.executor(ctx).QueryRowContext(ctx, query,
		p.PatentNumber, p.ApplicationNumber, p.EntityStatus, p.ApplicationDate, p.IssueDate,
		p.ReelNum, p.FrameNum, p.CorrespondentName, p.CorrespondentAddress, p.AssigneeName, p.AssigneeAddress,
	).Scan(&p.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return patent.ErrDuplicate(p.PatentNumber)
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create patent").WithDetail(p.PatentNumber)
	}
	return nil
}

func (r *postgresPatentRepo) UpdateEntityStatus(ctx context.Context, id int64, status string) error {
	return r.execOne(ctx, "UPDATE patents SET entity_status = $1 WHERE id = $2", id, status, id)
}

func (r *postgresPatentRepo) UpdateAssignment(ctx context.Context, id int64, a patent.Assignment) error {
	query := `
		UPDATE patents SET
			reel_num = $1, frame_num = $2,
			correspondent_name = $3, correspondent_address = $4,
			pat_assignee_name = $5, pat_assignee_address = $6
		WHERE id = $7
	`
	return r.execOne(ctx, query, id,
		a.ReelNum, a.FrameNum, a.CorrespondentName, a.CorrespondentAddress, a.AssigneeName, a.AssigneeAddress, id)
}

func (r *postgresPatentRepo) UpdateAssignee(ctx context.Context, id int64, name, address string) error {
	return r.execOne(ctx, "UPDATE patents SET pat_assignee_name = $1, pat_assignee_address = $2 WHERE id = $3",
		id, name, address, id)
}

func (r *postgresPatentRepo) execOne(ctx context.Context, query string, id int64, args ...interface{}) error {
	res, err := r.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update patent")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.New(errors.ErrCodePatentNotFound, "patent not found").WithDetail(idDetail(id))
	}
	return nil
}

func (r *postgresPatentRepo) ListIssuedBetween(ctx context.Context, from, to time.Time) ([]*patent.Patent, error) {
	query := "SELECT " + patentColumns + " FROM patents WHERE issue_date BETWEEN $1 AND $2 ORDER BY id"
	rows, err := r.executor(ctx).QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list patents by issue date")
	}
	return scanPatents(rows)
}

func (r *postgresPatentRepo) ListIssuedBefore(ctx context.Context, before time.Time) ([]*patent.Patent, error) {
	query := "SELECT " + patentColumns + " FROM patents WHERE issue_date < $1 ORDER BY id"
	rows, err := r.executor(ctx).QueryContext(ctx, query, before)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list expired patents")
	}
	return scanPatents(rows)
}

func (r *postgresPatentRepo) DeleteIssuedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.executor(ctx).ExecContext(ctx, "DELETE FROM patents WHERE issue_date < $1", before)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete expired patents")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count deleted patents")
	}
	r.log.Info("deleted expired patents", logging.Date("before", before), logging.Int64("count", n))
	return n, nil
}

func scanPatent(s scanner) (*patent.Patent, error) {
	p := &patent.Patent{}
	err := s.Scan(&p.ID, &p.PatentNumber, &p.ApplicationNumber, &p.EntityStatus, &p.ApplicationDate, &p.IssueDate,
		&p.ReelNum, &p.FrameNum, &p.CorrespondentName, &p.CorrespondentAddress, &p.AssigneeName, &p.AssigneeAddress)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.New(errors.ErrCodePatentNotFound, "patent not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan patent")
	}
	return p, nil
}

func scanPatents(rows *sql.Rows) ([]*patent.Patent, error) {
	defer rows.Close()
	var out []*patent.Patent
	for rows.Next() {
		p, err := scanPatent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate patents")
	}
	return out, nil
}
