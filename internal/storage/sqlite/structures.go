package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
)

// PutStructure persists an immutable structure version.
func (s *SQLiteStore) PutStructure(ctx context.Context, st *models.Structure) error {
	doc, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode structure: %w", err)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO structures (id, association_id, version, created_at, document)
		 VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.AssociationID, st.Version, st.CreatedAt.UnixNano(), string(doc),
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
func (s *SQLiteStore) GetStructure(ctx context.Context, structureID string) (*models.Structure, error) {
	var doc string
	err := s.q.QueryRowContext(ctx,
		"SELECT document FROM structures WHERE id = ?",
		structureID,
	).Scan(&doc)
	if err != nil {
		return nil, notFound(err, "structure", structureID)
	}

	var st models.Structure
	if err := json.Unmarshal([]byte(doc), &st); err != nil {
		return nil, fmt.Errorf("failed to decode structure: %w", err)
	}
	return &st, nil
}
