package postgres

import (
	"embed"
	stderrors "errors"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/jeffrey-bowles/uspto/internal/infrastructure/monitoring/logging"
	"github.com/jeffrey-bowles/uspto/pkg/errors"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// MigrationStatus is the applied schema version.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// Migrator applies the embedded schema migrations over an open Connection.
type Migrator struct {
	conn   *Connection
	logger logging.Logger
}

// NewMigrator returns a Migrator bound to conn.
func NewMigrator(conn *Connection, log logging.Logger) *Migrator {
	return &Migrator{conn: conn, logger: log}
}

// instance builds a migrate.Migrate over the shared pool. It is never
// closed: closing it would close the pool.
func (m *Migrator) instance() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to open embedded migrations")
	}
	driver, err := migratepg.WithInstance(m.conn.DB(), &migratepg.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	mg, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migrate instance")
	}
	return mg, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		version, _, _ := mg.Version()
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations").
			WithDetail("version=" + strconv.FormatUint(uint64(version), 10))
	}
	st, err := m.statusOf(mg)
	if err != nil {
		return err
	}
	m.logger.Info("database migrations completed",
		logging.Int64("version", int64(st.Version)),
		logging.Bool("dirty", st.Dirty),
	)
	return nil
}

// Down rolls back steps migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.New(errors.ErrCodeValidation, "steps must be greater than 0")
	}
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Steps(-steps); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to roll back migrations")
	}
	return nil
}

// Status reports the applied version. A database without migrations
// reports version 0.
func (m *Migrator) Status() (MigrationStatus, error) {
	mg, err := m.instance()
	if err != nil {
		return MigrationStatus{}, err
	}
	return m.statusOf(mg)
}

// Force marks version as applied without running it; used to clear a dirty
// state by hand.
func (m *Migrator) Force(version int) error {
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to force migration version")
	}
	return nil
}

func (m *Migrator) statusOf(mg *migrate.Migrate) (MigrationStatus, error) {
	version, dirty, err := mg.Version()
	if err != nil {
		if stderrors.Is(err, migrate.ErrNilVersion) {
			return MigrationStatus{}, nil
		}
		return MigrationStatus{}, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read migration version")
	}
	return MigrationStatus{Version: version, Dirty: dirty}, nil
}
