package calculator

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/mmynk/blocsheet/internal/models"
)

// Computation holds every derived value of a sheet. It is never stored.
type Computation struct {
	Allocations map[string]Allocation
	Differences map[string]Difference
	Rows        []models.MaintenanceRow
}

// DifferenceConfigFor resolves the reconciliation settings of an expense:
// its own config, then the sheet snapshot entry for its name, then defaults.
func DifferenceConfigFor(sheet *models.Sheet, expense *models.Expense) models.DifferenceConfig {
	if expense.Difference != nil {
		return expense.Difference.WithDefaults()
	}
	if cfg, ok := sheet.ConfigSnapshot.Difference[expense.Name]; ok {
		return cfg.WithDefaults()
	}
	return models.DifferenceConfig{}.WithDefaults()
}

// Compute runs distribution and reconciliation for every expense of the
// sheet and assembles the maintenance table. sheet.Structure must be set.
func Compute(sheet *models.Sheet) Computation {
	comp := Computation{
		Allocations: make(map[string]Allocation, len(sheet.Expenses)),
		Differences: make(map[string]Difference, len(sheet.Expenses)),
	}
	var units []models.Unit
	if sheet.Structure != nil {
		units = sheet.Structure.Units
	}

	for i := range sheet.Expenses {
		e := &sheet.Expenses[i]
		alloc := Distribute(e, units)
		comp.Allocations[e.ID] = alloc
		comp.Differences[e.ID] = Reconcile(e, units, alloc, DifferenceConfigFor(sheet, e))
	}

	rows := make([]models.MaintenanceRow, 0, len(units))
	for _, u := range units {
		carried := sheet.CarriedFor(u.ID)
		row := models.MaintenanceRow{
			UnitID:              u.ID,
			UnitNumber:          u.Number,
			OwnerName:           u.OwnerName,
			Persons:             u.Persons,
			BuildingID:          u.BuildingID,
			BuildingName:        sheet.Structure.BuildingName(u.BuildingID),
			StairwellID:         u.StairwellID,
			StairwellName:       sheet.Structure.StairwellName(u.StairwellID),
			CarriedRestante:     Round2(carried.Restante),
			Penalties:           Round2(carried.Penalties),
			ExpenseBreakdown:    make(map[string]float64),
			DifferenceBreakdown: make(map[string]float64),
		}

		var current []float64
		for _, e := range sheet.Expenses {
			if share := comp.Allocations[e.ID].Shares[u.ID]; share != 0 {
				row.ExpenseBreakdown[e.ID] = Round2(share)
				current = append(current, share)
			}
			if share := comp.Differences[e.ID].Shares[u.ID]; share != 0 {
				row.DifferenceBreakdown[e.ID] = Round2(share)
				current = append(current, share)
			}
		}
		raw := Sum(current...)
		row.CurrentCharges = Round2(raw)
		row.TotalDue = Round2(Sum(raw, carried.Restante, carried.Penalties))
		rows = append(rows, row)
	}

	SortRows(rows)
	comp.Rows = rows
	return comp
}

// BuildMaintenanceTable returns the per unit rows of a sheet in display order.
func BuildMaintenanceTable(sheet *models.Sheet) []models.MaintenanceRow {
	return Compute(sheet).Rows
}

// SortRows orders rows by building name, stairwell name and unit number,
// comparing digits numerically so "Ap 2" precedes "Ap 10".
func SortRows(rows []models.MaintenanceRow) {
	// Collators keep scratch buffers and must not be shared across goroutines.
	c := collate.New(language.Romanian, collate.Numeric)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if r := c.CompareString(a.BuildingName, b.BuildingName); r != 0 {
			return r < 0
		}
		if r := c.CompareString(a.StairwellName, b.StairwellName); r != 0 {
			return r < 0
		}
		if r := c.CompareString(a.UnitNumber, b.UnitNumber); r != 0 {
			return r < 0
		}
		return a.UnitID < b.UnitID
	})
}

// Totals sums the money columns of a table.
func Totals(rows []models.MaintenanceRow) models.MaintenanceRow {
	var current, restante, penalties, due []float64
	for _, r := range rows {
		current = append(current, r.CurrentCharges)
		restante = append(restante, r.CarriedRestante)
		penalties = append(penalties, r.Penalties)
		due = append(due, r.TotalDue)
	}
	return models.MaintenanceRow{
		CurrentCharges:  Round2(Sum(current...)),
		CarriedRestante: Round2(Sum(restante...)),
		Penalties:       Round2(Sum(penalties...)),
		TotalDue:        Round2(Sum(due...)),
	}
}
