package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/jeffrey-bowles/uspto/internal/domain/patent"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/postgres"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

type postgresFeeEventRepo struct {
	baseRepo
}

// NewPostgresFeeEventRepo returns the fee_events table repository.
func NewPostgresFeeEventRepo(conn *postgres.Connection, log logging.Logger) patent.FeeEventRepository {
	return &postgresFeeEventRepo{baseRepo: baseRepo{conn: conn, log: log}}
}

func (r *postgresFeeEventRepo) Create(ctx context.Context, e *patent.FeeEvent) error {
	err := r.executor(ctx).QueryRowContext(ctx,
		"INSERT INTO fee_events (patent_id, maintenance_date, maintenance_code) VALUES ($1, $2, $3) RETURNING id",
		e.PatentID, e.MaintenanceDate, e.MaintenanceCode,
	).Scan(&e.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create fee event").WithDetail(idDetail(e.PatentID))
	}
	return nil
}

func (r *postgresFeeEventRepo) GetOrCreate(ctx context.Context, e *patent.FeeEvent) (bool, error) {
	err := r.executor(ctx).QueryRowContext(ctx,
		"SELECT id FROM fee_events WHERE patent_id = $1 AND maintenance_date = $2 AND maintenance_code = $3 LIMIT 1",
		e.PatentID, e.MaintenanceDate, e.MaintenanceCode,
	).Scan(&e.ID)
	switch {
	case err == nil:
		return false, nil
	case stderrors.Is(err, sql.ErrNoRows):
		if err := r.Create(ctx, e); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to look up fee event")
	}
}

func (r *postgresFeeEventRepo) ListByPatent(ctx context.Context, patentID int64) ([]*patent.FeeEvent, error) {
	rows, err := r.executor(ctx).QueryContext(ctx,
		"SELECT id, patent_id, maintenance_date, maintenance_code FROM fee_events WHERE patent_id = $1 ORDER BY maintenance_date, id",
		patentID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list fee events")
	}
	defer rows.Close()

	var out []*patent.FeeEvent
	for rows.Next() {
		e := &patent.FeeEvent{}
		if err := rows.Scan(&e.ID, &e.PatentID, &e.MaintenanceDate, &e.MaintenanceCode); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan fee event")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate fee events")
	}
	return out, nil
}

func (r *postgresFeeEventRepo) PaidPatentIDs(ctx context.Context, from, to time.Time, codes []string) ([]int64, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	args := []interface{}{from, to}
	for _, c := range codes {
		args = append(args, c)
	}
	query := `
		SELECT DISTINCT p.id FROM patents p
		JOIN fee_events f ON f.patent_id = p.id
		WHERE p.issue_date BETWEEN $1 AND $2
		  AND f.maintenance_code IN (` + placeholders(3, len(codes)) + `)
		ORDER BY p.id
	`
	rows, err := r.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list paid patents")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan paid patent id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate paid patents")
	}
	return ids, nil
}

func idDetail(id int64) string {
	return "id=" + strconv.FormatInt(id, 10)
}
