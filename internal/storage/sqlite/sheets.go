package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
)

// CreateSheet persists a new sheet document.
func (s *SQLiteStore) CreateSheet(ctx context.Context, sheet *models.Sheet) error {
	// Generate ID if not set
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

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO sheets (id, association_id, period, status, structure_id, created_at, updated_at, document)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sheet.ID, sheet.AssociationID, sheet.Period, string(sheet.Status), sheet.StructureID,
		sheet.CreatedAt.UnixNano(), sheet.UpdatedAt.UnixNano(), string(doc),
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
func (s *SQLiteStore) GetSheet(ctx context.Context, sheetID string) (*models.Sheet, error) {
	var doc string
	err := s.q.QueryRowContext(ctx,
		"SELECT document FROM sheets WHERE id = ?",
		sheetID,
	).Scan(&doc)
	if err != nil {
		return nil, notFound(err, "sheet", sheetID)
	}
	return decodeSheet(doc)
}

// GetSheetByStatus retrieves the latest sheet of an association in a status.
func (s *SQLiteStore) GetSheetByStatus(ctx context.Context, associationID string, status models.SheetStatus) (*models.Sheet, error) {
	var doc string
	err := s.q.QueryRowContext(ctx,
		`SELECT document FROM sheets WHERE association_id = ? AND status = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		associationID, string(status),
	).Scan(&doc)
	if err != nil {
		return nil, notFound(err, "sheet", associationID+"/"+string(status))
	}
	return decodeSheet(doc)
}

// ListSheets retrieves all sheets of an association, oldest first.
func (s *SQLiteStore) ListSheets(ctx context.Context, associationID string) ([]*models.Sheet, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT document FROM sheets WHERE association_id = ? ORDER BY created_at, rowid",
		associationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sheets: %w", err)
	}
	defer rows.Close()

	var sheets []*models.Sheet
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		sheet, err := decodeSheet(doc)
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
func (s *SQLiteStore) UpdateSheet(ctx context.Context, sheet *models.Sheet) error {
	doc, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("failed to encode sheet: %w", err)
	}

	result, err := s.q.ExecContext(ctx,
		`UPDATE sheets SET period = ?, status = ?, structure_id = ?, updated_at = ?, document = ?
		 WHERE id = ?`,
		sheet.Period, string(sheet.Status), sheet.StructureID, sheet.UpdatedAt.UnixNano(), string(doc),
		sheet.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to update sheet %s: %w", sheet.ID, storage.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to update sheet: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("sheet %s: %w", sheet.ID, storage.ErrNotFound)
	}

	return nil
}

func decodeSheet(doc string) (*models.Sheet, error) {
	var sheet models.Sheet
	if err := json.Unmarshal([]byte(doc), &sheet); err != nil {
		return nil, fmt.Errorf("failed to decode sheet: %w", err)
	}
	return &sheet, nil
}
