package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
	"github.com/mmynk/blocsheet/internal/structure"
)

// mutate loads an in-progress sheet, applies fn and writes the sheet back.
// Ledger mutations touch a single document and need no transaction.
func (s *SheetService) mutate(ctx context.Context, op, sheetID string, fn func(sheet *models.Sheet) error) (*models.Sheet, error) {
	sheet, err := s.load(ctx, s.store, sheetID)
	if err != nil {
		return nil, s.fail(op, err, "sheet_id", sheetID)
	}
	if sheet.Status != models.SheetStatusInProgress {
		return nil, s.violation(op, sheet)
	}
	if err := fn(sheet); err != nil {
		return nil, s.fail(op, err, "sheet_id", sheetID)
	}
	sheet.UpdatedAt = s.now()
	if err := s.store.UpdateSheet(ctx, sheet); err != nil {
		return nil, s.fail(op, storeErr("update sheet", err), "sheet_id", sheetID)
	}
	s.metrics.LedgerMutation(op)
	return sheet, nil
}

// AddExpense appends an expense to an in-progress sheet. An id is assigned
// when empty.
func (s *SheetService) AddExpense(ctx context.Context, sheetID string, e models.Expense) (*models.Expense, error) {
	slog.Info("AddExpense request received", "sheet_id", sheetID, "name", e.Name, "policy", e.Policy)

	_, err := s.mutate(ctx, OpAddExpense, sheetID, func(sheet *models.Sheet) error {
		if e.ID == "" {
			e.ID = uuid.New().String()
		} else if sheet.FindExpense(e.ID) >= 0 {
			return invalid("id", "expense "+e.ID+" already exists")
		}
		if e.Granularity == "" {
			e.Granularity = models.GranularityTotal
		}
		if err := checkExpense(&e, sheet.Structure); err != nil {
			return err
		}
		sheet.Expenses = append(sheet.Expenses, e)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Expense added", "sheet_id", sheetID, "expense_id", e.ID)
	return &e, nil
}

// UpdateExpense replaces the expense with the same id.
func (s *SheetService) UpdateExpense(ctx context.Context, sheetID string, e models.Expense) (*models.Expense, error) {
	slog.Info("UpdateExpense request received", "sheet_id", sheetID, "expense_id", e.ID)

	_, err := s.mutate(ctx, OpUpdateExpense, sheetID, func(sheet *models.Sheet) error {
		i := sheet.FindExpense(e.ID)
		if i < 0 {
			return fmt.Errorf("expense %s: %w", e.ID, storage.ErrNotFound)
		}
		if e.Granularity == "" {
			e.Granularity = models.GranularityTotal
		}
		if err := checkExpense(&e, sheet.Structure); err != nil {
			return err
		}
		sheet.Expenses[i] = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RemoveExpense deletes an expense from an in-progress sheet.
func (s *SheetService) RemoveExpense(ctx context.Context, sheetID, expenseID string) error {
	slog.Info("RemoveExpense request received", "sheet_id", sheetID, "expense_id", expenseID)

	_, err := s.mutate(ctx, OpRemoveExpense, sheetID, func(sheet *models.Sheet) error {
		i := sheet.FindExpense(expenseID)
		if i < 0 {
			return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
		}
		sheet.Expenses = append(sheet.Expenses[:i], sheet.Expenses[i+1:]...)
		return nil
	})
	return err
}

// SetParticipation sets a unit's override on an expense and returns the
// override it replaced. A nil or integral override clears the entry.
func (s *SheetService) SetParticipation(ctx context.Context, sheetID, expenseID, unitID string, p *models.Participation) (*models.Participation, error) {
	var previous *models.Participation
	_, err := s.mutate(ctx, OpSetParticipation, sheetID, func(sheet *models.Sheet) error {
		i := sheet.FindExpense(expenseID)
		if i < 0 {
			return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
		}
		e := &sheet.Expenses[i]
		if p != nil {
			if err := checkParticipation(unitID, *p, sheet.Structure); err != nil {
				return err
			}
		} else if _, ok := sheet.Structure.Unit(unitID); !ok {
			return invalid("participation", "unknown unit "+unitID)
		}

		if old, ok := e.Participation[unitID]; ok {
			previous = &old
		}
		if p == nil || p.Kind == models.ParticipationIntegral {
			delete(e.Participation, unitID)
			return nil
		}
		if e.Participation == nil {
			e.Participation = make(map[string]models.Participation)
		}
		e.Participation[unitID] = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Participation set", "sheet_id", sheetID, "expense_id", expenseID, "unit_id", unitID)
	return previous, nil
}

// GetParticipation returns a unit's override on an expense, integral when
// none is set.
func (s *SheetService) GetParticipation(ctx context.Context, sheetID, expenseID, unitID string) (models.Participation, error) {
	sheet, err := s.load(ctx, s.store, sheetID)
	if err != nil {
		return models.Participation{}, err
	}
	i := sheet.FindExpense(expenseID)
	if i < 0 {
		return models.Participation{}, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	return sheet.Expenses[i].ParticipationFor(unitID), nil
}

// UpdateConfig changes the configuration snapshot of an in-progress sheet.
func (s *SheetService) UpdateConfig(ctx context.Context, sheetID string, in ConfigInput) (*models.ConfigSnapshot, error) {
	if in.Penalty != nil {
		if err := checkStruct("penalty", in.Penalty); err != nil {
			return nil, err
		}
	}
	if err := checkConfig(nil, in.Difference); err != nil {
		return nil, err
	}
	sheet, err := s.mutate(ctx, OpUpdateConfig, sheetID, func(sheet *models.Sheet) error {
		if in.Penalty != nil {
			sheet.ConfigSnapshot.Penalty = in.Penalty.apply(sheet.ConfigSnapshot.Penalty)
		}
		if in.Difference != nil {
			sheet.ConfigSnapshot.Difference = in.Difference
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sheet.ConfigSnapshot, nil
}

// SetInitialBalances replaces the opening balances of an association's
// first sheet. Successor sheets get theirs from carry-forward.
func (s *SheetService) SetInitialBalances(ctx context.Context, sheetID string, balances map[string]models.CarriedBalance) error {
	_, err := s.mutate(ctx, OpSetInitialBalances, sheetID, func(sheet *models.Sheet) error {
		if sheet.Balances.TransferredFrom != "" {
			return invalid("initial_balances", "sheet carries balances from "+sheet.Balances.TransferredFrom)
		}
		if err := checkBalances("initial_balances", balances, sheet.Structure); err != nil {
			return err
		}
		sheet.InitialBalances = balances
		return nil
	})
	return err
}

// EditStructure derives a new structure version for an in-progress sheet
// and repoints the sheet at it. Other sheets keep their versions.
func (s *SheetService) EditStructure(ctx context.Context, sheetID string, fn func(d *structure.Draft) error) (*models.Structure, error) {
	slog.Info("EditStructure request received", "sheet_id", sheetID)

	var next *models.Structure
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		sheet, err := s.load(ctx, tx, sheetID)
		if err != nil {
			return err
		}
		if sheet.Status != models.SheetStatusInProgress {
			return s.violation(OpEditStructure, sheet)
		}
		next, err = structure.Edit(sheet.Structure, s.now(), fn)
		if err != nil {
			return &InputError{Field: "structure", Reason: "edit rejected", Err: err}
		}
		if err := tx.PutStructure(ctx, next); err != nil {
			return storeErr("put structure", err)
		}
		sheet.StructureID = next.ID
		sheet.UpdatedAt = s.now()
		return storeErr("update sheet", tx.UpdateSheet(ctx, sheet))
	})
	if err != nil {
		return nil, s.fail(OpEditStructure, err, "sheet_id", sheetID)
	}

	s.metrics.LedgerMutation(OpEditStructure)
	slog.Info("Structure edited", "sheet_id", sheetID, "structure_id", next.ID, "version", next.Version)
	return next, nil
}
