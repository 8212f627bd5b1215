package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/blocsheet/internal/metrics"
	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/storage"
	"github.com/mmynk/blocsheet/internal/storage/memory"
	"github.com/mmynk/blocsheet/internal/storage/sqlite"
	"github.com/mmynk/blocsheet/internal/structure"
)

const assoc = "asoc-1"

type staticProvider struct {
	src *structure.Source
	err error
}

func (p staticProvider) Load(_ context.Context, associationID string) (*structure.Source, error) {
	if p.err != nil {
		return nil, p.err
	}
	src := *p.src
	src.AssociationID = associationID
	return &src, nil
}

func testSource() *structure.Source {
	return &structure.Source{
		Buildings:  []models.Building{{ID: "b1", Name: "Bloc A"}},
		Stairwells: []models.Stairwell{{ID: "s1", Name: "Scara 1", BuildingID: "b1"}},
		Units: []models.Unit{
			{ID: "u1", Number: "1", OwnerName: "Popescu", Persons: 2, Surface: 50, BuildingID: "b1", StairwellID: "s1"},
			{ID: "u2", Number: "2", OwnerName: "Ionescu", Persons: 3, Surface: 70, BuildingID: "b1", StairwellID: "s1"},
		},
	}
}

type backend struct {
	name string
	open func(t *testing.T) storage.Store
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) storage.Store { return memory.New() }},
		{name: "sqlite", open: func(t *testing.T) storage.Store {
			store, err := sqlite.New(filepath.Join(t.TempDir(), "service.db"))
			require.NoError(t, err)
			return store
		}},
	}
}

// forEachBackend runs fn once per store implementation.
func forEachBackend(t *testing.T, fn func(t *testing.T, store storage.Store)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t)
			t.Cleanup(func() { store.Close() })
			fn(t, store)
		})
	}
}

func newTestService(store storage.Store, opts ...Option) *SheetService {
	svc := NewSheetService(store, staticProvider{src: testSource()}, opts...)
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time {
		now = now.Add(time.Minute)
		return now
	})
	return svc
}

func createSheet(t *testing.T, svc *SheetService) *models.Sheet {
	t.Helper()
	sheet, err := svc.CreateSheet(context.Background(), CreateSheetInput{AssociationID: assoc, Period: "2025-03"})
	require.NoError(t, err)
	return sheet
}

func perUnit(name string, amount float64) models.Expense {
	return models.Expense{Name: name, Policy: models.PolicyPerUnit, Amount: amount}
}

func charges(rows []models.MaintenanceRow) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.UnitID] = r.CurrentCharges
	}
	return out
}

func TestCreateSheet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store storage.Store) {
		svc := newTestService(store)
		ctx := context.Background()

		sheet := createSheet(t, svc)
		assert.NotEmpty(t, sheet.ID)
		assert.Equal(t, models.SheetStatusInProgress, sheet.Status)
		require.NotNil(t, sheet.Structure)
		assert.Equal(t, 1, sheet.Structure.Version)
		assert.Len(t, sheet.Structure.Units, 2)
		assert.Equal(t, models.DefaultPenaltyRate, sheet.ConfigSnapshot.Penalty.Rate)
		assert.Equal(t, models.PaymentOrderArrearsFirst, sheet.ConfigSnapshot.Penalty.PaymentOrder)

		current, err := svc.GetCurrentSheet(ctx, assoc)
		require.NoError(t, err)
		assert.Equal(t, sheet.ID, current.ID)
		assert.Equal(t, sheet.StructureID, current.Structure.ID)

		_, err = svc.CreateSheet(ctx, CreateSheetInput{AssociationID: assoc, Period: "2025-04"})
		require.ErrorIs(t, err, ErrStateViolation)
		var stateErr *StateError
		require.ErrorAs(t, err, &stateErr)
		assert.Equal(t, sheet.ID, stateErr.SheetID)

		sheets, err := svc.ListSheets(ctx, assoc)
		require.NoError(t, err)
		assert.Len(t, sheets, 1)
	})
}

func TestCreateSheet_InvalidInput(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())

	tests := []struct {
		name string
		in   CreateSheetInput
	}{
		{name: "missing period", in: CreateSheetInput{AssociationID: assoc}},
		{name: "missing association", in: CreateSheetInput{Period: "2025-03"}},
		{
			name: "penalty rate out of range",
			in:   CreateSheetInput{AssociationID: assoc, Period: "2025-03", Penalty: &models.PenaltyConfig{Rate: 2}},
		},
		{
			name: "initial balance for unknown unit",
			in: CreateSheetInput{AssociationID: assoc, Period: "2025-03", InitialBalances: map[string]models.CarriedBalance{
				"u9": {Restante: 10},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateSheet(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	t.Run("structure provider failure", func(t *testing.T) {
		boom := errors.New("registry offline")
		svc := NewSheetService(memory.New(), staticProvider{err: boom})
		_, err := svc.CreateSheet(ctx, CreateSheetInput{AssociationID: assoc, Period: "2025-03"})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorIs(t, err, boom)
	})
}

func TestExpenseLedger(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store storage.Store) {
		svc := newTestService(store)
		ctx := context.Background()
		sheet := createSheet(t, svc)

		e, err := svc.AddExpense(ctx, sheet.ID, perUnit("Curatenie", 100))
		require.NoError(t, err)
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, models.GranularityTotal, e.Granularity)

		rows, err := svc.ComputeMaintenanceTable(ctx, sheet.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"u1": 50, "u2": 50}, charges(rows))

		e.Amount = 200
		_, err = svc.UpdateExpense(ctx, sheet.ID, *e)
		require.NoError(t, err)
		rows, err = svc.ComputeMaintenanceTable(ctx, sheet.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"u1": 100, "u2": 100}, charges(rows))

		require.NoError(t, svc.RemoveExpense(ctx, sheet.ID, e.ID))
		rows, err = svc.ComputeMaintenanceTable(ctx, sheet.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"u1": 0, "u2": 0}, charges(rows))

		err = svc.RemoveExpense(ctx, sheet.ID, e.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NotErrorIs(t, err, ErrStoreFailure)

		_, err = svc.AddExpense(ctx, sheet.ID, models.Expense{Name: "Bad", Policy: "byMood", Amount: 10})
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.AddExpense(ctx, "missing", perUnit("Lift", 10))
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, err, ErrStoreFailure)
	})
}

func TestFixedOverrideScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())
	sheet := createSheet(t, svc)

	e, err := svc.AddExpense(ctx, sheet.ID, perUnit("Administrare", 100))
	require.NoError(t, err)

	previous, err := svc.SetParticipation(ctx, sheet.ID, e.ID, "u1", &models.Participation{
		Kind:   models.ParticipationFixed,
		Amount: 20,
		Basis:  models.FixedPerUnit,
	})
	require.NoError(t, err)
	assert.Nil(t, previous)

	rows, err := svc.ComputeMaintenanceTable(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"u1": 20, "u2": 80}, charges(rows))

	_, err = svc.SetParticipation(ctx, sheet.ID, e.ID, "u9", &models.Participation{Kind: models.ParticipationExcluded})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.SetParticipation(ctx, sheet.ID, e.ID, "u2", &models.Participation{Kind: models.ParticipationPercentage, Percent: 150})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestConsumptionScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())
	sheet := createSheet(t, svc)

	_, err := svc.AddExpense(ctx, sheet.ID, models.Expense{
		Name:           "Apa rece",
		Policy:         models.PolicyConsumption,
		UnitPrice:      2,
		InvoicedAmount: 60,
		Consumption:    map[string]float64{"u1": 10, "u2": 15},
	})
	require.NoError(t, err)

	rows, err := svc.ComputeMaintenanceTable(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"u1": 25, "u2": 35}, charges(rows))
	for _, r := range rows {
		require.Len(t, r.DifferenceBreakdown, 1)
		for _, v := range r.DifferenceBreakdown {
			assert.Equal(t, 5.0, v)
		}
	}

	result, err := svc.CanPublish(ctx, sheet.ID)
	require.NoError(t, err)
	assert.True(t, result.OK())
}

func TestConsumptionExpense_RejectsAmount(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())
	sheet := createSheet(t, svc)

	e, err := svc.AddExpense(ctx, sheet.ID, models.Expense{
		Name:        "Apa rece",
		Policy:      models.PolicyConsumption,
		UnitPrice:   2,
		Amount:      60,
		Consumption: map[string]float64{"u1": 10, "u2": 15},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Nil(t, e)

	e, err = svc.AddExpense(ctx, sheet.ID, models.Expense{
		Name:           "Apa rece",
		Policy:         models.PolicyConsumption,
		UnitPrice:      2,
		InvoicedAmount: 60,
		Consumption:    map[string]float64{"u1": 10, "u2": 15},
	})
	require.NoError(t, err)

	e.Amount = 60
	_, err = svc.UpdateExpense(ctx, sheet.ID, *e)
	assert.ErrorIs(t, err, ErrInvalidInput)

	rows, err := svc.ComputeMaintenanceTable(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"u1": 25, "u2": 35}, charges(rows))
}

func TestParticipationCommand(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())
	sheet := createSheet(t, svc)
	e, err := svc.AddExpense(ctx, sheet.ID, perUnit("Curatenie", 100))
	require.NoError(t, err)

	cmd, err := NewExclusionToggle(ctx, svc, sheet.ID, e.ID, "u1")
	require.NoError(t, err)
	require.NotNil(t, cmd.Next)
	assert.True(t, cmd.Next.Excluded())

	require.NoError(t, cmd.Apply(ctx))
	assert.True(t, cmd.Applied())
	rows, err := svc.ComputeMaintenanceTable(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"u1": 0, "u2": 100}, charges(rows))

	toggleBack, err := NewExclusionToggle(ctx, svc, sheet.ID, e.ID, "u1")
	require.NoError(t, err)
	assert.Nil(t, toggleBack.Next)

	require.NoError(t, cmd.Rollback(ctx))
	rows, err = svc.ComputeMaintenanceTable(ctx, sheet.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"u1": 50, "u2": 50}, charges(rows))

	assert.ErrorIs(t, cmd.Rollback(ctx), ErrNotApplied)

	failing := NewParticipationCommand(svc, sheet.ID, "missing", "u1", &models.Participation{Kind: models.ParticipationExcluded})
	assert.Error(t, failing.Apply(ctx))
	assert.False(t, failing.Applied())
}

func TestPublish_ValidationFailure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store storage.Store) {
		svc := newTestService(store)
		ctx := context.Background()
		sheet := createSheet(t, svc)

		_, err := svc.AddExpense(ctx, sheet.ID, models.Expense{
			Name:           "Apa rece",
			Policy:         models.PolicyConsumption,
			UnitPrice:      2,
			InvoicedAmount: 60,
			Consumption:    map[string]float64{"u1": 10},
		})
		require.NoError(t, err)

		_, err = svc.Publish(ctx, sheet.ID, PublishInput{})
		require.ErrorIs(t, err, ErrValidationFailed)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		var codes []string
		for _, issue := range vErr.Result.Errors {
			codes = append(codes, issue.Code)
		}
		assert.Contains(t, codes, "missing_consumption")

		got, err := svc.GetSheet(ctx, sheet.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SheetStatusInProgress, got.Status)
		assert.Nil(t, got.MaintenanceTable)
		sheets, err := svc.ListSheets(ctx, assoc)
		require.NoError(t, err)
		assert.Len(t, sheets, 1)
	})
}

func TestPublish_Lifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store storage.Store) {
		svc := newTestService(store)
		ctx := context.Background()
		first := createSheet(t, svc)
		_, err := svc.AddExpense(ctx, first.ID, perUnit("Curatenie", 100))
		require.NoError(t, err)

		secondID, err := svc.Publish(ctx, first.ID, PublishInput{PublishedBy: "admin"})
		require.NoError(t, err)

		published, err := svc.GetSheet(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SheetStatusPublished, published.Status)
		assert.Len(t, published.MaintenanceTable, 2)
		assert.Len(t, published.SnapshotHash, 64)
		assert.Equal(t, "admin", published.PublishedBy)
		require.NotNil(t, published.PublishedAt)

		second, err := svc.GetSheet(ctx, secondID)
		require.NoError(t, err)
		assert.Equal(t, models.SheetStatusInProgress, second.Status)
		assert.Equal(t, "2025-04", second.Period)
		assert.Equal(t, first.ID, second.Balances.TransferredFrom)
		assert.Equal(t, first.ID, second.ConfigSnapshot.CreatedFromSheet)
		assert.Equal(t, published.StructureID, second.StructureID)
		assert.Empty(t, second.Expenses)

		// published sheets are read-only
		_, err = svc.AddExpense(ctx, first.ID, perUnit("Lift", 10))
		assert.ErrorIs(t, err, ErrStateViolation)
		_, err = svc.Publish(ctx, first.ID, PublishInput{})
		assert.ErrorIs(t, err, ErrStateViolation)
		_, err = svc.CanPublish(ctx, first.ID)
		assert.ErrorIs(t, err, ErrStateViolation)
		_, err = svc.RecordPayment(ctx, secondID, models.Payment{UnitID: "u1", Amount: 10})
		assert.ErrorIs(t, err, ErrStateViolation)

		rows, err := svc.ComputeMaintenanceTable(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, published.MaintenanceTable, rows)

		thirdID, err := svc.Publish(ctx, secondID, PublishInput{})
		require.NoError(t, err)

		sheets, err := svc.ListSheets(ctx, assoc)
		require.NoError(t, err)
		require.Len(t, sheets, 3)
		assert.Equal(t, models.SheetStatusArchived, sheets[0].Status)
		assert.NotNil(t, sheets[0].ArchivedAt)
		assert.Equal(t, models.SheetStatusPublished, sheets[1].Status)
		assert.Equal(t, models.SheetStatusInProgress, sheets[2].Status)
		assert.Equal(t, thirdID, sheets[2].ID)
		assert.Equal(t, "2025-05", sheets[2].Period)
	})
}

func TestPublish_CarryForward(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store storage.Store) {
		svc := newTestService(store)
		ctx := context.Background()
		sheet, err := svc.CreateSheet(ctx, CreateSheetInput{
			AssociationID: assoc,
			Period:        "2025-03",
			InitialBalances: map[string]models.CarriedBalance{
				"u1": {Restante: 40, Penalties: 10},
			},
		})
		require.NoError(t, err)
		_, err = svc.AddExpense(ctx, sheet.ID, perUnit("Administrare", 200))
		require.NoError(t, err)

		rows, err := svc.ComputeMaintenanceTable(ctx, sheet.ID)
		require.NoError(t, err)
		require.Equal(t, "u1", rows[0].UnitID)
		assert.Equal(t, 150.0, rows[0].TotalDue)

		nextID, err := svc.Publish(ctx, sheet.ID, PublishInput{
			Payments: []models.Payment{{UnitID: "u1", Amount: 100}},
		})
		require.NoError(t, err)

		balance, err := svc.ComputeUnitBalance(ctx, sheet.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, models.UnitBalance{Original: 150, Paid: 100, Remaining: 50}, balance)

		next, err := svc.GetSheet(ctx, nextID)
		require.NoError(t, err)
		assert.Equal(t, models.CarriedBalance{Restante: 50, Penalties: 1}, next.Balances.Carried["u1"])
		assert.Equal(t, models.CarriedBalance{Restante: 100, Penalties: 2}, next.Balances.Carried["u2"])
		assert.Equal(t, 150.0, next.Balances.PreviousTotal)
		assert.Equal(t, balance, next.Balances.ApartmentBalances["u1"])

		nextRows, err := svc.ComputeMaintenanceTable(ctx, nextID)
		require.NoError(t, err)
		assert.Equal(t, 50.0, nextRows[0].CarriedRestante)
		assert.Equal(t, 1.0, nextRows[0].Penalties)
		assert.Equal(t, 51.0, nextRows[0].TotalDue)

		err = svc.SetInitialBalances(ctx, nextID, map[string]models.CarriedBalance{"u1": {}})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestRecordPayment(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store storage.Store) {
		svc := newTestService(store)
		ctx := context.Background()
		sheet, err := svc.CreateSheet(ctx, CreateSheetInput{
			AssociationID:   assoc,
			Period:          "2025-03",
			InitialBalances: map[string]models.CarriedBalance{"u1": {Restante: 40, Penalties: 10}},
		})
		require.NoError(t, err)
		_, err = svc.AddExpense(ctx, sheet.ID, perUnit("Administrare", 200))
		require.NoError(t, err)
		nextID, err := svc.Publish(ctx, sheet.ID, PublishInput{})
		require.NoError(t, err)

		next, err := svc.GetSheet(ctx, nextID)
		require.NoError(t, err)
		assert.Equal(t, models.CarriedBalance{Restante: 150, Penalties: 2}, next.Balances.Carried["u1"])
		assert.Equal(t, 250.0, next.Balances.PreviousTotal)

		p, err := svc.RecordPayment(ctx, sheet.ID, models.Payment{UnitID: "u1", Amount: 100, Note: "chitanta 12"})
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.CreatedAt.IsZero())

		next, err = svc.GetSheet(ctx, nextID)
		require.NoError(t, err)
		assert.Equal(t, models.CarriedBalance{Restante: 50, Penalties: 1}, next.Balances.Carried["u1"])
		assert.Equal(t, models.UnitBalance{Original: 150, Paid: 100, Remaining: 50}, next.Balances.ApartmentBalances["u1"])
		assert.Equal(t, 150.0, next.Balances.PreviousTotal)

		_, err = svc.RecordPayment(ctx, sheet.ID, models.Payment{UnitID: "u1", Amount: 50})
		require.NoError(t, err)
		next, err = svc.GetSheet(ctx, nextID)
		require.NoError(t, err)
		assert.Equal(t, models.CarriedBalance{}, next.Balances.Carried["u1"])
		assert.Equal(t, 100.0, next.Balances.PreviousTotal)

		balance, err := svc.ComputeUnitBalance(ctx, sheet.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, 0.0, balance.Remaining)

		tests := []struct {
			name    string
			payment models.Payment
		}{
			{name: "zero amount", payment: models.Payment{UnitID: "u1"}},
			{name: "unknown unit", payment: models.Payment{UnitID: "u9", Amount: 10}},
			{name: "breakdown exceeds amount", payment: models.Payment{UnitID: "u1", Amount: 10, Maintenance: 8, Penalties: 5}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := svc.RecordPayment(ctx, sheet.ID, tt.payment)
				assert.ErrorIs(t, err, ErrInvalidInput)
			})
		}

		_, err = svc.ComputeUnitBalance(ctx, sheet.ID, "u9")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

// failingStore fails successor creation inside transactions.
type failingStore struct {
	storage.Store
	err error
}

func (f *failingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx storage.Store) error) error {
	return f.Store.WithTx(ctx, func(ctx context.Context, tx storage.Store) error {
		return fn(ctx, &failingStore{Store: tx, err: f.err})
	})
}

func (f *failingStore) CreateSheet(ctx context.Context, sheet *models.Sheet) error {
	if sheet.Balances.TransferredFrom != "" {
		return f.err
	}
	return f.Store.CreateSheet(ctx, sheet)
}

func TestPublish_AtomicOnStoreFailure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store storage.Store) {
		boom := errors.New("disk full")
		svc := newTestService(&failingStore{Store: store, err: boom})
		ctx := context.Background()

		first := createSheet(t, svc)
		_, err := svc.AddExpense(ctx, first.ID, perUnit("Curatenie", 100))
		require.NoError(t, err)

		_, err = svc.Publish(ctx, first.ID, PublishInput{Payments: []models.Payment{{UnitID: "u1", Amount: 10}}})
		require.ErrorIs(t, err, ErrStoreFailure)
		assert.ErrorIs(t, err, boom)

		got, err := svc.GetSheet(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SheetStatusInProgress, got.Status)
		assert.Empty(t, got.Payments)
		assert.Empty(t, got.SnapshotHash)

		_, err = svc.GetPublishedSheet(ctx, assoc)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		sheets, err := svc.ListSheets(ctx, assoc)
		require.NoError(t, err)
		assert.Len(t, sheets, 1)
	})
}

func TestEditStructure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store storage.Store) {
		svc := newTestService(store)
		ctx := context.Background()
		sheet := createSheet(t, svc)
		_, err := svc.AddExpense(ctx, sheet.ID, perUnit("Curatenie", 90))
		require.NoError(t, err)

		next, err := svc.EditStructure(ctx, sheet.ID, func(d *structure.Draft) error {
			_, err := d.AddUnit(models.Unit{ID: "u3", Number: "3", Persons: 1, StairwellID: "s1"})
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 2, next.Version)
		assert.Equal(t, sheet.StructureID, next.ParentID)

		rows, err := svc.ComputeMaintenanceTable(ctx, sheet.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"u1": 30, "u2": 30, "u3": 30}, charges(rows))

		_, err = svc.EditStructure(ctx, sheet.ID, func(d *structure.Draft) error {
			return d.RemoveUnit("u9")
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.ErrorIs(t, err, structure.ErrUnknownEntity)
		got, err := svc.GetSheet(ctx, sheet.ID)
		require.NoError(t, err)
		assert.Equal(t, next.ID, got.StructureID)

		nextID, err := svc.Publish(ctx, sheet.ID, PublishInput{})
		require.NoError(t, err)
		_, err = svc.EditStructure(ctx, sheet.ID, func(d *structure.Draft) error { return d.RemoveUnit("u3") })
		assert.ErrorIs(t, err, ErrStateViolation)

		edited, err := svc.EditStructure(ctx, nextID, func(d *structure.Draft) error { return d.RemoveUnit("u3") })
		require.NoError(t, err)
		assert.Equal(t, 3, edited.Version)

		published, err := svc.GetSheet(ctx, sheet.ID)
		require.NoError(t, err)
		assert.Equal(t, next.ID, published.StructureID)
		assert.Len(t, published.Structure.Units, 3)
	})
}

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(memory.New())
	sheet := createSheet(t, svc)

	rate := 0.05
	cfg, err := svc.UpdateConfig(ctx, sheet.ID, ConfigInput{
		Penalty: &PenaltyUpdate{Rate: &rate, PaymentOrder: models.PaymentOrderCurrentFirst},
		Difference: map[string]models.DifferenceConfig{
			"Apa rece": {Method: models.DifferencePerPerson},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.05, cfg.Penalty.Rate)
	assert.Equal(t, models.DifferencePerPerson, cfg.Difference["Apa rece"].Method)

	cfg, err = svc.UpdateConfig(ctx, sheet.ID, ConfigInput{
		Penalty: &PenaltyUpdate{PaymentOrder: models.PaymentOrderProportional},
	})
	require.NoError(t, err)
	assert.Equal(t, models.PenaltyConfig{Rate: 0.05, PaymentOrder: models.PaymentOrderProportional}, cfg.Penalty)
	assert.Equal(t, models.DifferencePerPerson, cfg.Difference["Apa rece"].Method)

	zero := 0.0
	cfg, err = svc.UpdateConfig(ctx, sheet.ID, ConfigInput{Penalty: &PenaltyUpdate{Rate: &zero}})
	require.NoError(t, err)
	assert.Equal(t, models.PenaltyConfig{Rate: 0, PaymentOrder: models.PaymentOrderProportional}, cfg.Penalty)

	tooHigh := 1.5
	for _, update := range []PenaltyUpdate{{PaymentOrder: "whenever"}, {Rate: &tooHigh}} {
		_, err = svc.UpdateConfig(ctx, sheet.ID, ConfigInput{Penalty: &update})
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestPublish_Metrics(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	svc := newTestService(memory.New(), WithMetrics(m))
	sheet := createSheet(t, svc)

	_, err := svc.AddExpense(ctx, sheet.ID, models.Expense{Name: "Apa rece", Policy: models.PolicyConsumption, UnitPrice: 2})
	require.NoError(t, err)
	_, err = svc.Publish(ctx, sheet.ID, PublishInput{})
	require.ErrorIs(t, err, ErrValidationFailed)

	current, err := svc.GetSheet(ctx, sheet.ID)
	require.NoError(t, err)
	require.Len(t, current.Expenses, 1)
	require.NoError(t, svc.RemoveExpense(ctx, sheet.ID, current.Expenses[0].ID))

	_, err = svc.Publish(ctx, sheet.ID, PublishInput{})
	require.NoError(t, err)

	expected := `
# HELP blocsheet_publish_total Publish attempts by result.
# TYPE blocsheet_publish_total counter
blocsheet_publish_total{result="published"} 1
blocsheet_publish_total{result="rejected"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "blocsheet_publish_total"))
}

func TestNextPeriod(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"2025-03", "2025-04"},
		{"2024-12", "2025-01"},
		{"Martie", "Martie (next)"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, nextPeriod(tt.in))
		})
	}
}

func TestRolloverMeters(t *testing.T) {
	expenses := []models.Expense{
		{
			ID:             "water",
			Name:           "Apa rece",
			Policy:         models.PolicyConsumption,
			UnitPrice:      7.5,
			InvoicedAmount: 300,
			Meters: map[string][]models.MeterReading{
				"u1": {{Meter: "baie", Previous: 100, Current: 112}, {Meter: "bucatarie", Previous: 40}},
			},
		},
		perUnit("Curatenie", 100),
	}

	got := rolloverMeters(expenses)
	require.Len(t, got, 1)
	assert.Equal(t, "water", got[0].ID)
	assert.Equal(t, 7.5, got[0].UnitPrice)
	assert.Zero(t, got[0].InvoicedAmount)
	assert.Equal(t, []models.MeterReading{
		{Meter: "baie", Previous: 112},
		{Meter: "bucatarie", Previous: 40},
	}, got[0].Meters["u1"])
}
