// Package storagetest is a conformance suite run against every
// storage.Store backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
)

// Factory returns a ready store. It is called once per subtest; the suite
// closes the store when the subtest ends.
type Factory func(t *testing.T) storage.Store

// Times are truncated to milliseconds so every backend round-trips them.
var base = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

// Run executes the suite.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	open := func(t *testing.T) storage.Store {
		s := newStore(t)
		t.Cleanup(func() { s.Close() })
		return s
	}

	t.Run("structure versions round-trip and are immutable", func(t *testing.T) {
		s := open(t)
		st := Structure(uuid.New().String())

		require.NoError(t, s.PutStructure(ctx, st))

		got, err := s.GetStructure(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, st, got)

		err = s.PutStructure(ctx, st)
		assert.ErrorIs(t, err, storage.ErrConflict)

		_, err = s.GetStructure(ctx, uuid.New().String())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("sheet documents round-trip", func(t *testing.T) {
		s := open(t)
		assoc := uuid.New().String()
		st := Structure(assoc)
		require.NoError(t, s.PutStructure(ctx, st))

		sheet := Sheet(assoc, st.ID, models.SheetStatusInProgress)
		sheet.ID = ""
		require.NoError(t, s.CreateSheet(ctx, sheet))
		assert.NotEmpty(t, sheet.ID)

		got, err := s.GetSheet(ctx, sheet.ID)
		require.NoError(t, err)
		assert.Equal(t, sheet, got)
	})

	t.Run("missing sheets", func(t *testing.T) {
		s := open(t)

		_, err := s.GetSheet(ctx, uuid.New().String())
		assert.ErrorIs(t, err, storage.ErrNotFound)

		_, err = s.GetSheetByStatus(ctx, uuid.New().String(), models.SheetStatusInProgress)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		missing := Sheet(uuid.New().String(), "x", models.SheetStatusPublished)
		err = s.UpdateSheet(ctx, missing)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("one in-progress sheet per association", func(t *testing.T) {
		s := open(t)
		assoc := uuid.New().String()
		st := Structure(assoc)
		require.NoError(t, s.PutStructure(ctx, st))

		require.NoError(t, s.CreateSheet(ctx, Sheet(assoc, st.ID, models.SheetStatusInProgress)))

		err := s.CreateSheet(ctx, Sheet(assoc, st.ID, models.SheetStatusInProgress))
		assert.ErrorIs(t, err, storage.ErrConflict)

		other := Structure(uuid.New().String())
		require.NoError(t, s.PutStructure(ctx, other))
		assert.NoError(t, s.CreateSheet(ctx, Sheet(other.AssociationID, other.ID, models.SheetStatusInProgress)))
	})

	t.Run("status lookup and listing", func(t *testing.T) {
		s := open(t)
		assoc := uuid.New().String()
		st := Structure(assoc)
		require.NoError(t, s.PutStructure(ctx, st))

		first := Sheet(assoc, st.ID, models.SheetStatusArchived)
		first.Period = "2025-01"
		second := Sheet(assoc, st.ID, models.SheetStatusArchived)
		second.Period = "2025-02"
		second.CreatedAt = first.CreatedAt.Add(time.Hour)
		third := Sheet(assoc, st.ID, models.SheetStatusInProgress)
		third.Period = "2025-03"
		third.CreatedAt = first.CreatedAt.Add(2 * time.Hour)
		for _, sh := range []*models.Sheet{first, second, third} {
			require.NoError(t, s.CreateSheet(ctx, sh))
		}

		got, err := s.GetSheetByStatus(ctx, assoc, models.SheetStatusArchived)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)

		list, err := s.ListSheets(ctx, assoc)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"2025-01", "2025-02", "2025-03"}, []string{list[0].Period, list[1].Period, list[2].Period})

		third.Status = models.SheetStatusPublished
		require.NoError(t, s.UpdateSheet(ctx, third))
		_, err = s.GetSheetByStatus(ctx, assoc, models.SheetStatusInProgress)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("transaction commits every write", func(t *testing.T) {
		s := open(t)
		assoc := uuid.New().String()
		st := Structure(assoc)
		require.NoError(t, s.PutStructure(ctx, st))
		current := Sheet(assoc, st.ID, models.SheetStatusInProgress)
		require.NoError(t, s.CreateSheet(ctx, current))

		next := Sheet(assoc, st.ID, models.SheetStatusInProgress)
		next.CreatedAt = current.CreatedAt.Add(time.Minute)
		err := s.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
			current.Status = models.SheetStatusPublished
			if err := tx.UpdateSheet(ctx, current); err != nil {
				return err
			}
			return tx.CreateSheet(ctx, next)
		})
		require.NoError(t, err)

		got, err := s.GetSheet(ctx, current.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SheetStatusPublished, got.Status)

		got, err = s.GetSheetByStatus(ctx, assoc, models.SheetStatusInProgress)
		require.NoError(t, err)
		assert.Equal(t, next.ID, got.ID)
	})

	t.Run("transaction rolls back on error", func(t *testing.T) {
		s := open(t)
		assoc := uuid.New().String()
		st := Structure(assoc)
		require.NoError(t, s.PutStructure(ctx, st))
		current := Sheet(assoc, st.ID, models.SheetStatusInProgress)
		require.NoError(t, s.CreateSheet(ctx, current))

		boom := errors.New("boom")
		err := s.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
			published := *current
			published.Status = models.SheetStatusPublished
			if err := tx.UpdateSheet(ctx, &published); err != nil {
				return err
			}
			if err := tx.PutStructure(ctx, Structure(assoc)); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.GetSheet(ctx, current.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SheetStatusInProgress, got.Status)
	})

	t.Run("transaction reads its own writes", func(t *testing.T) {
		s := open(t)
		assoc := uuid.New().String()
		st := Structure(assoc)

		err := s.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
			if err := tx.PutStructure(ctx, st); err != nil {
				return err
			}
			got, err := tx.GetStructure(ctx, st.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, st.ID, got.ID)
			return nil
		})
		require.NoError(t, err)
	})
}

// Structure returns a small structure version for association assoc.
func Structure(assoc string) *models.Structure {
	return &models.Structure{
		ID:            uuid.New().String(),
		AssociationID: assoc,
		Version:       1,
		Buildings:     []models.Building{{ID: "b1", Name: "Bloc A"}},
		Stairwells:    []models.Stairwell{{ID: "s1", Name: "Scara 1", BuildingID: "b1"}},
		Units: []models.Unit{
			{ID: "u1", Number: "1", OwnerName: "Popescu", Persons: 2, Surface: 48.5, BuildingID: "b1", StairwellID: "s1"},
			{ID: "u2", Number: "2", Persons: 1, Surface: 51, BuildingID: "b1", StairwellID: "s1", ApartmentType: "2cam"},
		},
		CreatedAt: base,
	}
}

// Sheet returns a populated sheet document.
func Sheet(assoc, structureID string, status models.SheetStatus) *models.Sheet {
	return &models.Sheet{
		ID:            uuid.New().String(),
		AssociationID: assoc,
		Period:        "2025-03",
		Status:        status,
		StructureID:   structureID,
		Expenses: []models.Expense{
			{
				ID:             "apa",
				Name:           "Apa rece",
				Policy:         models.PolicyConsumption,
				Granularity:    models.GranularityTotal,
				UnitPrice:      8.5,
				InvoicedAmount: 120,
				Consumption:    map[string]float64{"u1": 6, "u2": 7.5},
				Participation: map[string]models.Participation{
					"u2": {Kind: models.ParticipationPercentage, Percent: 50},
				},
			},
		},
		Balances: models.Balances{
			PreviousTotal:   10,
			TransferredFrom: "prev",
			Carried:         map[string]models.CarriedBalance{"u1": {Restante: 10, Penalties: 0.2}},
		},
		ConfigSnapshot: models.ConfigSnapshot{
			Penalty: models.PenaltyConfig{Rate: 0.02, PaymentOrder: models.PaymentOrderArrearsFirst},
		},
		CreatedAt: base,
		UpdatedAt: base,
	}
}
