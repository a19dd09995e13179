package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/safar/go-card-store/internal/database"
	"go.uber.org/zap"
)

// advisoryLockKey serializes migration runs across instances sharing a database.
const advisoryLockKey int64 = 0x63617264

type AppliedMigration struct {
	Version   int       `db:"version"`
	Name      string    `db:"name"`
	AppliedAt time.Time `db:"applied_at"`
}

type Migrator struct {
	db         *sqlx.DB
	logger     *zap.Logger
	migrations []Migration
}

func New(db *sqlx.DB, logger *zap.Logger) *Migrator {
	return NewWith(db, logger, Migrations())
}

// NewWith builds a Migrator over an explicit history, ordered by version.
func NewWith(db *sqlx.DB, logger *zap.Logger, migrations []Migration) *Migrator {
	return &Migrator{
		db:         db,
		logger:     logger,
		migrations: migrations,
	}
}

// Run applies every migration not yet recorded in schema_migrations and
// returns how many were applied. Any failure other than an already existing
// column aborts the run.
func (m *Migrator) Run(ctx context.Context) (int, error) {
	conn, err := m.db.Connx(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return 0, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockKey); err != nil {
			m.logger.Warn("release migration lock", zap.Error(err))
		}
	}()

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	var versions []int
	if err := conn.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("load applied migrations: %w", err)
	}
	for _, v := range versions {
		applied[v] = true
	}

	count := 0
	for _, mig := range m.migrations {
		if applied[mig.Version] {
			continue
		}

		start := time.Now()
		if err := m.apply(ctx, conn, mig); err != nil {
			return count, fmt.Errorf("migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++

		m.logger.Info("migration applied",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name),
			zap.Duration("duration", time.Since(start)),
		)
	}

	return count, nil
}

func (m *Migrator) apply(ctx context.Context, conn *sqlx.Conn, mig Migration) error {
	tx, err := conn.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if mig.SQL != "" {
		if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
			return err
		}
	}

	for _, col := range mig.Columns {
		if err := m.addColumn(ctx, tx, col); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
		mig.Version, mig.Name); err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	return tx.Commit()
}

// addColumn runs inside a savepoint so a duplicate column does not poison the
// surrounding transaction.
func (m *Migrator) addColumn(ctx context.Context, tx *sqlx.Tx, col Column) error {
	if _, err := tx.ExecContext(ctx, `SAVEPOINT add_column`); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		pq.QuoteIdentifier(col.Table), pq.QuoteIdentifier(col.Name), col.Definition)

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		if !database.IsDuplicateColumn(err) {
			return fmt.Errorf("add column %s.%s: %w", col.Table, col.Name, err)
		}
		if _, rbErr := tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT add_column`); rbErr != nil {
			return fmt.Errorf("rollback to savepoint: %w", rbErr)
		}
		m.logger.Debug("column already exists",
			zap.String("table", col.Table),
			zap.String("column", col.Name),
		)
		return nil
	}

	if _, err := tx.ExecContext(ctx, `RELEASE SAVEPOINT add_column`); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	m.logger.Info("column added",
		zap.String("table", col.Table),
		zap.String("column", col.Name),
	)
	return nil
}

func (m *Migrator) Status(ctx context.Context) ([]AppliedMigration, error) {
	var out []AppliedMigration
	err := m.db.SelectContext(ctx, &out,
		`SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	return out, nil
}

func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}

	var pending []Migration
	for _, mig := range m.migrations {
		if !done[mig.Version] {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}
