// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"

	"github.com/kodaktechie/recoveryd/internal/model"
	"github.com/kodaktechie/recoveryd/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetProgress(ctx context.Context, identityID string) (*model.Progress, error) {
	p, err := queryGetProgress(ctx, s.db, identityID)
	if err != nil {
		return nil, mapError("get progress", err)
	}
	return p, nil
}

func (s *PostgresStore) CreateProgressIfAbsent(ctx context.Context, identityID string, defaults store.Defaults) (*model.Progress, error) {
	p, err := queryCreateProgressIfAbsent(ctx, s.db, identityID, defaults)
	if err != nil {
		return nil, mapError("create progress", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, identityID string, patch model.ProgressPatch) (*model.Progress, error) {
	current, err := queryGetProgress(ctx, s.db, identityID)
	if err != nil {
		return nil, mapError("update progress", err)
	}
	if err := model.ValidatePatch(current, patch); err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}
	p, err := queryUpdateProgress(ctx, s.db, identityID, patch)
	if err != nil {
		return nil, mapError("update progress", err)
	}
	return p, nil
}

func (s *PostgresStore) EnsureFeeAssigned(ctx context.Context, identityID string, step int, defaultFee int64) (*model.Progress, error) {
	p, err := queryEnsureFeeAssigned(ctx, s.db, identityID, step, defaultFee)
	if err != nil {
		return nil, mapError("ensure fee", err)
	}
	return p, nil
}

func (s *PostgresStore) ListProgress(ctx context.Context) ([]*model.Progress, error) {
	ps, err := queryListProgress(ctx, s.db)
	if err != nil {
		return nil, mapError("list progress", err)
	}
	return ps, nil
}

// mapError translates driver-level failures into the store error taxonomy
// while preserving the underlying error text.
func mapError(op string, err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, store.ErrUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%s: %w: %v", op, store.ErrUnavailable, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "40": // transaction rollback (serialization failure, deadlock)
			return fmt.Errorf("%s: %w: %v", op, store.ErrConflict, err)
		case "08", "53", "57": // connection, resource, operator intervention
			return fmt.Errorf("%s: %w: %v", op, store.ErrUnavailable, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
