// Package service orchestrates the billing period lifecycle of an
// association: sheet creation, the expense ledger, publish with
// carry-forward, and payments. Computation is delegated to the calculator
// package; every read recomputes from the stored raw inputs.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmynk/blocsheet/internal/calculator"
	"github.com/mmynk/blocsheet/internal/metrics"
	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
	"github.com/mmynk/blocsheet/internal/structure"
)

// Operation names used in errors, logs and metrics.
const (
	OpCreateSheet        = "create_sheet"
	OpAddExpense         = "add_expense"
	OpUpdateExpense      = "update_expense"
	OpRemoveExpense      = "remove_expense"
	OpSetParticipation   = "set_participation"
	OpEditStructure      = "edit_structure"
	OpUpdateConfig       = "update_config"
	OpSetInitialBalances = "set_initial_balances"
	OpCanPublish         = "can_publish"
	OpPublish            = "publish"
	OpRecordPayment      = "record_payment"
)

// SheetService implements the sheet lifecycle on top of a document store.
type SheetService struct {
	store      storage.Store
	structures structure.Provider
	metrics    *metrics.Metrics
	penalty    models.PenaltyConfig
	now        func() time.Time
}

// Option configures a SheetService.
type Option func(*SheetService)

// WithMetrics instruments the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *SheetService) { s.metrics = m }
}

// WithPenalty sets the penalty policy given to sheets created without one.
func WithPenalty(p models.PenaltyConfig) Option {
	return func(s *SheetService) { s.penalty = p.WithDefaults() }
}

// NewSheetService creates a SheetService. structures is consulted only when
// an association's first sheet is created.
func NewSheetService(store storage.Store, structures structure.Provider, opts ...Option) *SheetService {
	s := &SheetService{
		store:      store,
		structures: structures,
		penalty:    models.PenaltyConfig{Rate: models.DefaultPenaltyRate}.WithDefaults(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithNow overrides the clock for deterministic tests.
func (s *SheetService) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateSheet creates the in-progress sheet of an association. It fails
// when one already exists. If the association has a published sheet the
// new one is seeded from it the way publish seeds a successor; otherwise
// the structure is captured from the provider.
func (s *SheetService) CreateSheet(ctx context.Context, in CreateSheetInput) (*models.Sheet, error) {
	slog.Info("CreateSheet request received", "association_id", in.AssociationID, "period", in.Period)

	if err := checkStruct("sheet", in); err != nil {
		return nil, err
	}
	if err := checkConfig(in.Penalty, in.Difference); err != nil {
		return nil, err
	}

	var sheet *models.Sheet
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		existing, err := tx.GetSheetByStatus(ctx, in.AssociationID, models.SheetStatusInProgress)
		switch {
		case err == nil:
			return s.violation(OpCreateSheet, existing)
		case !errors.Is(err, storage.ErrNotFound):
			return storeErr("get in-progress sheet", err)
		}

		published, err := s.loadByStatus(ctx, tx, in.AssociationID, models.SheetStatusPublished)
		switch {
		case err == nil:
			carry := calculator.CarryForward(published.MaintenanceTable, published.Payments, published.ConfigSnapshot.Penalty)
			sheet = newSuccessor(published, carry, s.now())
			sheet.Period = in.Period
			sheet.Notes = in.Notes
			sheet.Structure = published.Structure
			return storeErr("create sheet", tx.CreateSheet(ctx, sheet))
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		sheet, err = s.initialSheet(ctx, in)
		if err != nil {
			return err
		}
		if err := tx.PutStructure(ctx, sheet.Structure); err != nil {
			return storeErr("put structure", err)
		}
		return storeErr("create sheet", tx.CreateSheet(ctx, sheet))
	})
	if err != nil {
		return nil, s.fail(OpCreateSheet, err, "association_id", in.AssociationID)
	}

	slog.Info("Sheet created", "sheet_id", sheet.ID, "association_id", sheet.AssociationID, "structure_id", sheet.StructureID)
	return sheet, nil
}

func (s *SheetService) initialSheet(ctx context.Context, in CreateSheetInput) (*models.Sheet, error) {
	src, err := s.structures.Load(ctx, in.AssociationID)
	if err != nil {
		return nil, &InputError{Field: "structure", Reason: "cannot load association structure", Err: err}
	}
	now := s.now()
	st, err := structure.Capture(src, now)
	if err != nil {
		return nil, &InputError{Field: "structure", Reason: "invalid association structure", Err: err}
	}
	if err := checkBalances("initial_balances", in.InitialBalances, st); err != nil {
		return nil, err
	}

	penalty := s.penalty
	if in.Penalty != nil {
		penalty = in.Penalty.WithDefaults()
	}
	return &models.Sheet{
		AssociationID:   in.AssociationID,
		Period:          in.Period,
		Status:          models.SheetStatusInProgress,
		StructureID:     st.ID,
		Structure:       st,
		InitialBalances: in.InitialBalances,
		ConfigSnapshot: models.ConfigSnapshot{
			Penalty:    penalty,
			Difference: in.Difference,
		},
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetSheet returns a sheet with its structure resolved.
func (s *SheetService) GetSheet(ctx context.Context, sheetID string) (*models.Sheet, error) {
	return s.load(ctx, s.store, sheetID)
}

// GetCurrentSheet returns the in-progress sheet of an association.
func (s *SheetService) GetCurrentSheet(ctx context.Context, associationID string) (*models.Sheet, error) {
	return s.loadByStatus(ctx, s.store, associationID, models.SheetStatusInProgress)
}

// GetPublishedSheet returns the published sheet of an association.
func (s *SheetService) GetPublishedSheet(ctx context.Context, associationID string) (*models.Sheet, error) {
	return s.loadByStatus(ctx, s.store, associationID, models.SheetStatusPublished)
}

// ListSheets returns every sheet of an association, oldest first. Structures
// are not resolved.
func (s *SheetService) ListSheets(ctx context.Context, associationID string) ([]*models.Sheet, error) {
	sheets, err := s.store.ListSheets(ctx, associationID)
	if err != nil {
		return nil, storeErr("list sheets", err)
	}
	return sheets, nil
}

// ComputeMaintenanceTable returns the maintenance table of a sheet: the
// frozen table once published, a fresh computation while in progress.
func (s *SheetService) ComputeMaintenanceTable(ctx context.Context, sheetID string) ([]models.MaintenanceRow, error) {
	sheet, err := s.load(ctx, s.store, sheetID)
	if err != nil {
		return nil, err
	}
	return tableOf(sheet), nil
}

// ComputeUnitBalance returns what a unit owes on a sheet given the payments
// recorded against it.
func (s *SheetService) ComputeUnitBalance(ctx context.Context, sheetID, unitID string) (models.UnitBalance, error) {
	sheet, err := s.load(ctx, s.store, sheetID)
	if err != nil {
		return models.UnitBalance{}, err
	}
	row, ok := findRow(tableOf(sheet), unitID)
	if !ok {
		return models.UnitBalance{}, fmt.Errorf("unit %s: %w", unitID, storage.ErrNotFound)
	}
	return calculator.ComputeUnitBalance(row, sheet.Payments), nil
}

// CanPublish reports the validation errors and warnings of an in-progress
// sheet.
func (s *SheetService) CanPublish(ctx context.Context, sheetID string) (models.ValidationResult, error) {
	sheet, err := s.load(ctx, s.store, sheetID)
	if err != nil {
		return models.ValidationResult{}, err
	}
	if sheet.Status != models.SheetStatusInProgress {
		return models.ValidationResult{}, s.violation(OpCanPublish, sheet)
	}
	return calculator.ValidateSheet(sheet), nil
}

func (s *SheetService) load(ctx context.Context, store storage.Store, sheetID string) (*models.Sheet, error) {
	sheet, err := store.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, storeErr("get sheet", err)
	}
	return s.resolve(ctx, store, sheet)
}

func (s *SheetService) loadByStatus(ctx context.Context, store storage.Store, associationID string, status models.SheetStatus) (*models.Sheet, error) {
	sheet, err := store.GetSheetByStatus(ctx, associationID, status)
	if err != nil {
		return nil, storeErr("get "+string(status)+" sheet", err)
	}
	return s.resolve(ctx, store, sheet)
}

func (s *SheetService) resolve(ctx context.Context, store storage.Store, sheet *models.Sheet) (*models.Sheet, error) {
	st, err := store.GetStructure(ctx, sheet.StructureID)
	if err != nil {
		return nil, storeErr("get structure", err)
	}
	sheet.Structure = st
	return sheet, nil
}

// violation records and returns a state violation for op on sheet.
func (s *SheetService) violation(op string, sheet *models.Sheet) error {
	s.metrics.StateViolation(op)
	slog.Warn("Operation rejected by sheet state", "op", op, "sheet_id", sheet.ID, "status", sheet.Status)
	return &StateError{Op: op, SheetID: sheet.ID, Status: sheet.Status}
}

// fail classifies and logs an error returned by op.
func (s *SheetService) fail(op string, err error, attrs ...any) error {
	if !passThrough(err) {
		err = storeErr(op, err)
	}
	attrs = append(attrs, "op", op, "error", err)
	if errors.Is(err, ErrStoreFailure) && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("Operation failed", attrs...)
	} else {
		slog.Warn("Operation rejected", attrs...)
	}
	return err
}

func tableOf(sheet *models.Sheet) []models.MaintenanceRow {
	if sheet.Status != models.SheetStatusInProgress && sheet.MaintenanceTable != nil {
		return sheet.MaintenanceTable
	}
	return calculator.BuildMaintenanceTable(sheet)
}

func findRow(rows []models.MaintenanceRow, unitID string) (models.MaintenanceRow, bool) {
	for _, r := range rows {
		if r.UnitID == unitID {
			return r, true
		}
	}
	return models.MaintenanceRow{}, false
}
