// Package memory provides an in-process implementation of storage.Store.
//
// Documents are kept JSON-encoded so callers never share memory with the
// store, matching the copy semantics of the database backends.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type sheetRecord struct {
	doc           []byte
	associationID string
	status        models.SheetStatus
	seq           int
}

type state struct {
	sheets     map[string]sheetRecord
	structures map[string][]byte
	seq        int
}

func (st *state) clone() *state {
	c := &state{
		sheets:     make(map[string]sheetRecord, len(st.sheets)),
		structures: make(map[string][]byte, len(st.structures)),
		seq:        st.seq,
	}
	for k, v := range st.sheets {
		c.sheets[k] = v
	}
	for k, v := range st.structures {
		c.structures[k] = v
	}
	return c
}

// Store is a storage.Store held in memory.
type Store struct {
	mu sync.RWMutex
	st *state
}

// New returns an empty store.
func New() *Store {
	return &Store{st: &state{
		sheets:     make(map[string]sheetRecord),
		structures: make(map[string][]byte),
	}}
}

func (s *Store) CreateSheet(_ context.Context, sheet *models.Sheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.createSheet(sheet)
}

func (s *Store) GetSheet(_ context.Context, sheetID string) (*models.Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getSheet(sheetID)
}

func (s *Store) GetSheetByStatus(_ context.Context, associationID string, status models.SheetStatus) (*models.Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getSheetByStatus(associationID, status)
}

func (s *Store) ListSheets(_ context.Context, associationID string) ([]*models.Sheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listSheets(associationID)
}

func (s *Store) UpdateSheet(_ context.Context, sheet *models.Sheet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.updateSheet(sheet)
}

func (s *Store) PutStructure(_ context.Context, st *models.Structure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.putStructure(st)
}

func (s *Store) GetStructure(_ context.Context, structureID string) (*models.Structure, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getStructure(structureID)
}

// WithTx holds the store's write lock for the duration of fn and applies
// fn's writes to a staged copy that replaces the live state on success.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(ctx, &txStore{st: staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

func (s *Store) Close() error { return nil }

// txStore operates on a staged state under the parent's lock.
type txStore struct {
	st *state
}

func (t *txStore) CreateSheet(_ context.Context, sheet *models.Sheet) error {
	return t.st.createSheet(sheet)
}

func (t *txStore) GetSheet(_ context.Context, sheetID string) (*models.Sheet, error) {
	return t.st.getSheet(sheetID)
}

func (t *txStore) GetSheetByStatus(_ context.Context, associationID string, status models.SheetStatus) (*models.Sheet, error) {
	return t.st.getSheetByStatus(associationID, status)
}

func (t *txStore) ListSheets(_ context.Context, associationID string) ([]*models.Sheet, error) {
	return t.st.listSheets(associationID)
}

func (t *txStore) UpdateSheet(_ context.Context, sheet *models.Sheet) error {
	return t.st.updateSheet(sheet)
}

func (t *txStore) PutStructure(_ context.Context, st *models.Structure) error {
	return t.st.putStructure(st)
}

func (t *txStore) GetStructure(_ context.Context, structureID string) (*models.Structure, error) {
	return t.st.getStructure(structureID)
}

func (t *txStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	return fn(ctx, t)
}

func (t *txStore) Close() error { return nil }

func (st *state) createSheet(sheet *models.Sheet) error {
	if sheet.ID == "" {
		sheet.ID = uuid.New().String()
	}
	if _, exists := st.sheets[sheet.ID]; exists {
		return fmt.Errorf("sheet %s: %w", sheet.ID, storage.ErrConflict)
	}
	if sheet.CreatedAt.IsZero() {
		sheet.CreatedAt = time.Now().UTC()
	}
	if sheet.UpdatedAt.IsZero() {
		sheet.UpdatedAt = sheet.CreatedAt
	}
	if err := st.checkInProgress(sheet); err != nil {
		return err
	}

	doc, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("failed to encode sheet: %w", err)
	}
	st.seq++
	st.sheets[sheet.ID] = sheetRecord{doc: doc, associationID: sheet.AssociationID, status: sheet.Status, seq: st.seq}
	return nil
}

func (st *state) updateSheet(sheet *models.Sheet) error {
	rec, ok := st.sheets[sheet.ID]
	if !ok {
		return fmt.Errorf("sheet %s: %w", sheet.ID, storage.ErrNotFound)
	}
	if err := st.checkInProgress(sheet); err != nil {
		return err
	}

	doc, err := json.Marshal(sheet)
	if err != nil {
		return fmt.Errorf("failed to encode sheet: %w", err)
	}
	rec.doc = doc
	rec.status = sheet.Status
	st.sheets[sheet.ID] = rec
	return nil
}

// checkInProgress enforces at most one in-progress sheet per association.
func (st *state) checkInProgress(sheet *models.Sheet) error {
	if sheet.Status != models.SheetStatusInProgress {
		return nil
	}
	for id, rec := range st.sheets {
		if id != sheet.ID && rec.associationID == sheet.AssociationID && rec.status == models.SheetStatusInProgress {
			return fmt.Errorf("association %s already has in-progress sheet %s: %w", sheet.AssociationID, id, storage.ErrConflict)
		}
	}
	return nil
}

func (st *state) getSheet(sheetID string) (*models.Sheet, error) {
	rec, ok := st.sheets[sheetID]
	if !ok {
		return nil, fmt.Errorf("sheet %s: %w", sheetID, storage.ErrNotFound)
	}
	return decodeSheet(rec.doc)
}

func (st *state) getSheetByStatus(associationID string, status models.SheetStatus) (*models.Sheet, error) {
	var best *sheetRecord
	for _, rec := range st.sheets {
		if rec.associationID != associationID || rec.status != status {
			continue
		}
		if best == nil || rec.seq > best.seq {
			r := rec
			best = &r
		}
	}
	if best == nil {
		return nil, fmt.Errorf("sheet %s/%s: %w", associationID, status, storage.ErrNotFound)
	}
	return decodeSheet(best.doc)
}

func (st *state) listSheets(associationID string) ([]*models.Sheet, error) {
	var recs []sheetRecord
	for _, rec := range st.sheets {
		if rec.associationID == associationID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	sheets := make([]*models.Sheet, 0, len(recs))
	for _, rec := range recs {
		sheet, err := decodeSheet(rec.doc)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, sheet)
	}
	return sheets, nil
}

func (st *state) putStructure(s *models.Structure) error {
	if _, exists := st.structures[s.ID]; exists {
		return fmt.Errorf("structure %s already stored: %w", s.ID, storage.ErrConflict)
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode structure: %w", err)
	}
	st.structures[s.ID] = doc
	return nil
}

func (st *state) getStructure(structureID string) (*models.Structure, error) {
	doc, ok := st.structures[structureID]
	if !ok {
		return nil, fmt.Errorf("structure %s: %w", structureID, storage.ErrNotFound)
	}
	var s models.Structure
	if err := json.Unmarshal(doc, &s); err != nil {
		return nil, fmt.Errorf("failed to decode structure: %w", err)
	}
	return &s, nil
}

func decodeSheet(doc []byte) (*models.Sheet, error) {
	var sheet models.Sheet
	if err := json.Unmarshal(doc, &sheet); err != nil {
		return nil, fmt.Errorf("failed to decode sheet: %w", err)
	}
	return &sheet, nil
}
