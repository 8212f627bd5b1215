package cli

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/mmynk/blocsheet/internal/calculator"
	"github.com/mmynk/blocsheet/internal/models"
)

func (app *App) render(data pterm.TableData) error {
	table, err := pterm.DefaultTable.
		WithHasHeader().
		WithBoxed().
		WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).
		WithData(data).
		Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(app.out, table)
	return err
}

func (app *App) renderIssues(result models.ValidationResult) error {
	if len(result.Errors)+len(result.Warnings) == 0 {
		return nil
	}
	data := pterm.TableData{{"Severity", "Code", "Expense", "Unit", "Message"}}
	for _, list := range [][]models.ValidationIssue{result.Errors, result.Warnings} {
		for _, issue := range list {
			severity := pterm.FgRed.Sprint(issue.Severity)
			if issue.Severity == models.SeverityWarning {
				severity = pterm.FgYellow.Sprint(issue.Severity)
			}
			data = append(data, []string{severity, issue.Code, issue.ExpenseID, issue.UnitID, issue.Message})
		}
	}
	return app.render(data)
}

func maintenanceTable(rows []models.MaintenanceRow) pterm.TableData {
	data := pterm.TableData{{"Building", "Stairwell", "Unit", "Owner", "Persons", "Current", "Carried", "Penalties", "Total due"}}
	for _, r := range rows {
		data = append(data, []string{
			r.BuildingName, r.StairwellName, r.UnitNumber, r.OwnerName, fmt.Sprint(r.Persons),
			money(r.CurrentCharges), money(r.CarriedRestante), money(r.Penalties), money(r.TotalDue),
		})
	}
	t := calculator.Totals(rows)
	data = append(data, []string{
		pterm.Bold.Sprint("Total"), "", "", "", "",
		money(t.CurrentCharges), money(t.CarriedRestante), money(t.Penalties), pterm.Bold.Sprint(money(t.TotalDue)),
	})
	return data
}

func sheetsTable(sheets []*models.Sheet) pterm.TableData {
	data := pterm.TableData{{"ID", "Period", "Status", "Expenses", "Payments", "Published"}}
	for _, s := range sheets {
		published := ""
		if s.PublishedAt != nil {
			published = s.PublishedAt.Format("2006-01-02 15:04")
		}
		data = append(data, []string{
			s.ID, s.Period, string(s.Status), fmt.Sprint(len(s.Expenses)), fmt.Sprint(len(s.Payments)), published,
		})
	}
	return data
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
