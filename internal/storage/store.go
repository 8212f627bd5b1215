// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/blocsheet/internal/models"
)

var (
	// ErrNotFound is returned when a sheet or structure version does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would leave an association with
	// two in-progress sheets, or when an id is already taken.
	ErrConflict = errors.New("conflict")
)

// Store defines the interface for sheet and structure storage.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// MongoDB, memory) without changing the service layer.
//
// Sheets and structure versions are stored as whole documents. Derived
// values (allocations, differences) are never stored; only a published
// sheet carries its frozen maintenance table.
type Store interface {
	// CreateSheet persists a new sheet. The sheet.ID field will be populated
	// by the store when empty.
	CreateSheet(ctx context.Context, sheet *models.Sheet) error

	// GetSheet retrieves a sheet by its ID.
	// Returns ErrNotFound if the sheet does not exist.
	GetSheet(ctx context.Context, sheetID string) (*models.Sheet, error)

	// GetSheetByStatus returns the most recently created sheet of an
	// association with the given status.
	// Returns ErrNotFound if there is none.
	GetSheetByStatus(ctx context.Context, associationID string, status models.SheetStatus) (*models.Sheet, error)

	// ListSheets returns all sheets of an association, oldest first.
	ListSheets(ctx context.Context, associationID string) ([]*models.Sheet, error)

	// UpdateSheet replaces an existing sheet.
	// Returns ErrNotFound if the sheet does not exist.
	UpdateSheet(ctx context.Context, sheet *models.Sheet) error

	// PutStructure persists a structure version. Versions are immutable:
	// storing an id twice returns ErrConflict.
	PutStructure(ctx context.Context, s *models.Structure) error

	// GetStructure retrieves a structure version by its ID.
	// Returns ErrNotFound if the version does not exist.
	GetStructure(ctx context.Context, structureID string) (*models.Structure, error)

	// WithTx runs fn against a transactional view of the store. Every write
	// made through tx is committed together when fn returns nil and discarded
	// otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	// Close releases any resources held by the store.
	Close() error
}
