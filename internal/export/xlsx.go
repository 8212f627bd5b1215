// Package export renders maintenance tables for distribution to owners.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/mmynk/blocsheet/internal/calculator"
	"github.com/mmynk/blocsheet/internal/models"
)

const (
	summarySheet = "summary"
	tableSheet   = "table"
)

// MaintenanceXLSX renders a sheet's maintenance table as a workbook with a
// summary sheet and one row per unit. Each expense gets a column holding
// the unit's distribution share plus its difference share.
func MaintenanceXLSX(sheet *models.Sheet, rows []models.MaintenanceRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(tableSheet); err != nil {
		return nil, err
	}

	totals := calculator.Totals(rows)
	summary := [][]any{
		{"Association", sheet.AssociationID},
		{"Period", sheet.Period},
		{"Status", string(sheet.Status)},
		{"Units", len(rows)},
		{"Current charges", totals.CurrentCharges},
		{"Carried arrears", totals.CarriedRestante},
		{"Penalties", totals.Penalties},
		{"Total due", totals.TotalDue},
	}
	if sheet.SnapshotHash != "" {
		summary = append(summary, []any{"Snapshot", sheet.SnapshotHash})
	}
	for i, values := range summary {
		if err := setRow(f, summarySheet, i+1, values); err != nil {
			return nil, err
		}
	}

	header := []any{"Building", "Stairwell", "Unit", "Owner", "Persons"}
	for _, e := range sheet.Expenses {
		header = append(header, e.Name)
	}
	header = append(header, "Current charges", "Carried arrears", "Penalties", "Total due")
	if err := setRow(f, tableSheet, 1, header); err != nil {
		return nil, err
	}

	for i, r := range rows {
		values := []any{r.BuildingName, r.StairwellName, r.UnitNumber, r.OwnerName, r.Persons}
		for _, e := range sheet.Expenses {
			values = append(values, calculator.Round2(r.ExpenseBreakdown[e.ID]+r.DifferenceBreakdown[e.ID]))
		}
		values = append(values, r.CurrentCharges, r.CarriedRestante, r.Penalties, r.TotalDue)
		if err := setRow(f, tableSheet, i+2, values); err != nil {
			return nil, err
		}
	}

	footer := make([]any, 5+len(sheet.Expenses))
	footer[0] = "Total"
	footer = append(footer, totals.CurrentCharges, totals.CarriedRestante, totals.Penalties, totals.TotalDue)
	if err := setRow(f, tableSheet, len(rows)+2, footer); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
