// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS structures (
    id TEXT PRIMARY KEY,
    association_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    document JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS sheets (
    id TEXT PRIMARY KEY,
    association_id TEXT NOT NULL,
    period TEXT NOT NULL,
    status TEXT NOT NULL,
    structure_id TEXT NOT NULL REFERENCES structures(id),
    seq BIGSERIAL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    document JSONB NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_sheets_one_in_progress
    ON sheets(association_id) WHERE status = 'in_progress';
CREATE INDEX IF NOT EXISTS idx_sheets_association_status ON sheets(association_id, status, seq);
`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

// New connects to dsn and applies the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &Store{pool: pool, q: pool}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if !s.inTx {
		s.pool.Close()
	}
	return nil
}

// WithTx wraps fn in a serializable transaction. Nested calls join the
// outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(ctx, &Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreateSheet persists a new sheet document.
func (s *Store) CreateSheet(ctx context.Context, sheet *models.Sheet) error {
	if sheet.ID == "" {
		sheet.ID = uuid.New().String()
	}
	if sheet.CreatedAt.IsZero() {
		sheet.CreatedAt = time.Now().UTC()
	}
	if sheet.UpdatedAt.IsZero() {
		sheet.UpdatedAt = sheet.CreatedAt
	}

	doc, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("failed to encode sheet: %w", err)
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO sheets (id, association_id, period, status, structure_id, created_at, updated_at, document)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sheet.ID, sheet.AssociationID, sheet.Period, string(sheet.Status), sheet.StructureID,
		sheet.CreatedAt, sheet.UpdatedAt, doc,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert sheet %s: %w", sheet.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert sheet: %w", err)
	}
	return nil
}

// GetSheet retrieves a sheet by ID.
func (s *Store) GetSheet(ctx context.Context, sheetID string) (*models.Sheet, error) {
	var doc []byte
	err := s.q.QueryRow(ctx, "SELECT document FROM sheets WHERE id = $1", sheetID).Scan(&doc)
	if err != nil {
		return nil, notFound(err, "sheet", sheetID)
	}
	return decode[models.Sheet](doc, "sheet")
}

// GetSheetByStatus retrieves the latest sheet of an association in a status.
func (s *Store) GetSheetByStatus(ctx context.Context, associationID string, status models.SheetStatus) (*models.Sheet, error) {
	var doc []byte
	err := s.q.QueryRow(ctx,
		`SELECT document FROM sheets WHERE association_id = $1 AND status = $2
		 ORDER BY seq DESC LIMIT 1`,
		associationID, string(status),
	).Scan(&doc)
	if err != nil {
		return nil, notFound(err, "sheet", associationID+"/"+string(status))
	}
	return decode[models.Sheet](doc, "sheet")
}

// ListSheets retrieves all sheets of an association, oldest first.
func (s *Store) ListSheets(ctx context.Context, associationID string) ([]*models.Sheet, error) {
	rows, err := s.q.Query(ctx,
		"SELECT document FROM sheets WHERE association_id = $1 ORDER BY seq",
		associationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}
	defer rows.Close()

	var sheets []*models.Sheet
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		sheet, err := decode[models.Sheet](doc, "sheet")
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sheets: %w", err)
	}
	return sheets, nil
}

// UpdateSheet replaces an existing sheet document.
func (s *Store) UpdateSheet(ctx context.Context, sheet *models.Sheet) error {
	doc, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("failed to encode sheet: %w", err)
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE sheets SET period = $1, status = $2, structure_id = $3, updated_at = $4, document = $5
		 WHERE id = $6`,
		sheet.Period, string(sheet.Status), sheet.StructureID, sheet.UpdatedAt, doc, sheet.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to update sheet %s: %w", sheet.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update sheet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sheet %s: %w", sheet.ID, storage.ErrNotFound)
	}
	return nil
}

// PutStructure persists an immutable structure version.
func (s *Store) PutStructure(ctx context.Context, st *models.Structure) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode structure: %w", err)
	}

	_, err = s.q.Exec(ctx,
		`INSERT INTO structures (id, association_id, version, created_at, document)
		 VALUES ($1, $2, $3, $4, $5)`,
		st.ID, st.AssociationID, st.Version, st.CreatedAt, doc,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("structure %s already stored: %w", st.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert structure: %w", err)
	}
	return nil
}

// GetStructure retrieves a structure version by ID.
func (s *Store) GetStructure(ctx context.Context, structureID string) (*models.Structure, error) {
	var doc []byte
	err := s.q.QueryRow(ctx, "SELECT document FROM structures WHERE id = $1", structureID).Scan(&doc)
	if err != nil {
		return nil, notFound(err, "structure", structureID)
	}
	return decode[models.Structure](doc, "structure")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, storage.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", kind, err)
}

func decode[T any](doc []byte, kind string) (*T, error) {
	var v T
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", kind, err)
	}
	return &v, nil
}
