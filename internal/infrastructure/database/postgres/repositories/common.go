package repositories

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/database/postgres"
	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
)

// inChunk bounds the placeholder count of a single IN list.
const inChunk = 1000

// uniqueViolation is the SQLSTATE of a unique constraint violation.
const uniqueViolation = "23505"

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

type baseRepo struct {
	conn *postgres.Connection
	log  logging.Logger
}

// executor returns the transaction carried by ctx, or the pool.
func (r *baseRepo) executor(ctx context.Context) queryExecutor {
	if tx, ok := postgres.TxFromContext(ctx); ok {
		return tx
	}
	return r.conn.DB()
}

// placeholders renders "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(start + i))
	}
	return b.String()
}
