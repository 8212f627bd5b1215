package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/blocsheet/internal/calculator"
	"github.com/mmynk/blocsheet/internal/metrics"
	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
)

// Publish freezes the maintenance table of an in-progress sheet, archives
// the association's previously published sheet, and creates the successor
// in-progress sheet seeded with carried balances. Everything happens in one
// store transaction; on any failure the sheet stays in progress and no
// successor exists. It returns the successor's id.
func (s *SheetService) Publish(ctx context.Context, sheetID string, in PublishInput) (string, error) {
	slog.Info("Publish request received", "sheet_id", sheetID, "payments", len(in.Payments))
	start := time.Now()

	if in.Penalty != nil {
		if err := checkStruct("penalty", in.Penalty); err != nil {
			s.metrics.ObservePublish(metrics.ResultRejected, time.Since(start))
			return "", err
		}
	}

	var (
		successor *models.Sheet
		result    models.ValidationResult
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		sheet, err := s.load(ctx, tx, sheetID)
		if err != nil {
			return err
		}
		if sheet.Status != models.SheetStatusInProgress {
			return s.violation(OpPublish, sheet)
		}

		result = calculator.ValidateSheet(sheet)
		if !result.OK() {
			return &ValidationError{Result: result}
		}

		now := s.now()
		payments, err := preparePayments(in.Payments, sheet.Structure, in.PublishedBy, now)
		if err != nil {
			return err
		}
		penalty := sheet.ConfigSnapshot.Penalty
		if in.Penalty != nil {
			penalty = *in.Penalty
		}
		penalty = penalty.WithDefaults()

		rows := calculator.BuildMaintenanceTable(sheet)
		hash, err := snapshotHash(rows)
		if err != nil {
			return err
		}

		if err := archivePublished(ctx, tx, sheet.AssociationID, now); err != nil {
			return err
		}

		sheet.Status = models.SheetStatusPublished
		sheet.MaintenanceTable = rows
		sheet.SnapshotHash = hash
		sheet.Payments = append(sheet.Payments, payments...)
		sheet.ConfigSnapshot.Penalty = penalty
		sheet.PublishedAt = &now
		sheet.PublishedBy = in.PublishedBy
		sheet.UpdatedAt = now
		if err := tx.UpdateSheet(ctx, sheet); err != nil {
			return storeErr("update sheet", err)
		}

		carry := calculator.CarryForward(rows, sheet.Payments, penalty)
		successor = newSuccessor(sheet, carry, now)
		if err := tx.CreateSheet(ctx, successor); err != nil {
			return storeErr("create successor", err)
		}
		successor.Structure = sheet.Structure
		return nil
	})
	s.metrics.ObserveValidation(result)
	if err != nil {
		outcome := metrics.ResultFailed
		if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrStateViolation) || errors.Is(err, ErrInvalidInput) {
			outcome = metrics.ResultRejected
		}
		s.metrics.ObservePublish(outcome, time.Since(start))
		return "", s.fail(OpPublish, err, "sheet_id", sheetID)
	}
	s.metrics.ObservePublish(metrics.ResultPublished, time.Since(start))

	slog.Info("Sheet published",
		"sheet_id", sheetID,
		"successor_id", successor.ID,
		"period", successor.Period,
		"previous_total", successor.Balances.PreviousTotal,
		"warnings", len(result.Warnings),
	)
	return successor.ID, nil
}

// RecordPayment records a payment against a published sheet and, in the
// same transaction, refreshes the unit's carried balance on the successor
// sheet so it always equals the unit's remaining balance.
func (s *SheetService) RecordPayment(ctx context.Context, sheetID string, p models.Payment) (*models.Payment, error) {
	slog.Info("RecordPayment request received", "sheet_id", sheetID, "unit_id", p.UnitID, "amount", p.Amount)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		sheet, err := s.load(ctx, tx, sheetID)
		if err != nil {
			return err
		}
		if sheet.Status != models.SheetStatusPublished {
			return s.violation(OpRecordPayment, sheet)
		}
		if err := checkPayment(&p, sheet.Structure); err != nil {
			return err
		}
		row, ok := findRow(sheet.MaintenanceTable, p.UnitID)
		if !ok {
			return invalid("unit_id", "unit "+p.UnitID+" is not billed on sheet "+sheet.ID)
		}

		now := s.now()
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.CreatedAt = now
		sheet.Payments = append(sheet.Payments, p)
		sheet.UpdatedAt = now
		if err := tx.UpdateSheet(ctx, sheet); err != nil {
			return storeErr("update sheet", err)
		}
		return syncSuccessor(ctx, tx, sheet, row, now)
	})
	if err != nil {
		return nil, s.fail(OpRecordPayment, err, "sheet_id", sheetID, "unit_id", p.UnitID)
	}

	s.metrics.PaymentRecorded()
	slog.Info("Payment recorded", "sheet_id", sheetID, "payment_id", p.ID, "unit_id", p.UnitID)
	return &p, nil
}

// syncSuccessor recomputes one unit's carried balance on the in-progress
// sheet that was seeded from published.
func syncSuccessor(ctx context.Context, tx storage.Store, published *models.Sheet, row models.MaintenanceRow, now time.Time) error {
	next, err := tx.GetSheetByStatus(ctx, published.AssociationID, models.SheetStatusInProgress)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("get successor", err)
	}
	if next.Balances.TransferredFrom != published.ID {
		return nil
	}

	var payments []models.Payment
	for _, p := range published.Payments {
		if p.UnitID == row.UnitID {
			payments = append(payments, p)
		}
	}
	carried, balance := calculator.CarryUnit(row, payments, published.ConfigSnapshot.Penalty)

	b := &next.Balances
	if b.Carried == nil {
		b.Carried = make(map[string]models.CarriedBalance)
	}
	if b.ApartmentBalances == nil {
		b.ApartmentBalances = make(map[string]models.UnitBalance)
	}
	b.Carried[row.UnitID] = carried
	b.ApartmentBalances[row.UnitID] = balance
	remaining := make([]float64, 0, len(b.ApartmentBalances))
	for _, ub := range b.ApartmentBalances {
		remaining = append(remaining, ub.Remaining)
	}
	b.PreviousTotal = calculator.Round2(calculator.Sum(remaining...))
	next.UpdatedAt = now

	slog.Debug("Successor balance refreshed", "sheet_id", next.ID, "unit_id", row.UnitID, "restante", carried.Restante, "penalties", carried.Penalties)
	return storeErr("update successor", tx.UpdateSheet(ctx, next))
}

func archivePublished(ctx context.Context, tx storage.Store, associationID string, now time.Time) error {
	prev, err := tx.GetSheetByStatus(ctx, associationID, models.SheetStatusPublished)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr("get published sheet", err)
	}
	prev.Status = models.SheetStatusArchived
	prev.ArchivedAt = &now
	prev.UpdatedAt = now
	if err := tx.UpdateSheet(ctx, prev); err != nil {
		return storeErr("archive sheet", err)
	}
	slog.Info("Sheet archived", "sheet_id", prev.ID, "association_id", associationID)
	return nil
}

func preparePayments(in []models.Payment, st *models.Structure, recordedBy string, now time.Time) ([]models.Payment, error) {
	out := make([]models.Payment, 0, len(in))
	for _, p := range in {
		if err := checkPayment(&p, st); err != nil {
			return nil, err
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.RecordedBy == "" {
			p.RecordedBy = recordedBy
		}
		p.CreatedAt = now
		out = append(out, p)
	}
	return out, nil
}

// newSuccessor builds the in-progress sheet that follows published.
func newSuccessor(published *models.Sheet, carry calculator.Carry, now time.Time) *models.Sheet {
	cfg := published.ConfigSnapshot
	cfg.Difference = maps.Clone(cfg.Difference)
	cfg.CreatedFromSheet = published.ID

	return &models.Sheet{
		ID:            uuid.New().String(),
		AssociationID: published.AssociationID,
		Period:        nextPeriod(published.Period),
		Status:        models.SheetStatusInProgress,
		StructureID:   published.StructureID,
		Expenses:      rolloverMeters(published.Expenses),
		Balances: models.Balances{
			PreviousTotal:     carry.PreviousTotal,
			TransferredFrom:   published.ID,
			Carried:           carry.Carried,
			ApartmentBalances: carry.Balances,
		},
		ConfigSnapshot: cfg,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// nextPeriod advances a "2006-01" label by one month.
func nextPeriod(period string) string {
	t, err := time.Parse("2006-01", period)
	if err != nil {
		return period + " (next)"
	}
	return t.AddDate(0, 1, 0).Format("2006-01")
}

// rolloverMeters returns expense shells for the metered expenses: the last
// current index becomes the next previous index. Amounts do not carry.
func rolloverMeters(expenses []models.Expense) []models.Expense {
	var out []models.Expense
	for _, e := range expenses {
		meters := make(map[string][]models.MeterReading)
		var read bool
		for unitID, readings := range e.Meters {
			next := make([]models.MeterReading, 0, len(readings))
			for _, r := range readings {
				prev := r.Previous
				if r.Current > 0 {
					prev = r.Current
					read = true
				}
				next = append(next, models.MeterReading{Meter: r.Meter, Previous: prev})
			}
			meters[unitID] = next
		}
		if !read {
			continue
		}
		out = append(out, models.Expense{
			ID:          e.ID,
			Name:        e.Name,
			Policy:      e.Policy,
			Granularity: e.Granularity,
			UnitPrice:   e.UnitPrice,
			Meters:      meters,
		})
	}
	return out
}

// snapshotHash fingerprints a frozen maintenance table.
func snapshotHash(rows []models.MaintenanceRow) (string, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
