package calculator

import (
	"fmt"

	"github.com/mmynk/blocsheet/internal/models"
)

// Validation issue codes.
const (
	CodeEmptyStructure          = "empty_structure"
	CodeZeroTotalStructure      = "zero_total_structure"
	CodeMissingConsumption      = "missing_consumption"
	CodeMissingUnitPrice        = "missing_unit_price"
	CodeMissingIndividualAmount = "missing_individual_amount"
	CodeIndividualMismatch      = "individual_mismatch"
	CodeFixedExceedsTarget      = "fixed_exceeds_target"
	CodeUnallocatedRemainder    = "unallocated_remainder"
	CodeUnresolvedDifference    = "unresolved_difference"

	CodeZeroAmountExpense = "zero_amount_expense"
	CodeNoExpenses        = "no_expenses"
)

// ValidateSheet checks whether a sheet can be published. Errors block
// publishing; warnings do not. sheet.Structure must be set.
func ValidateSheet(sheet *models.Sheet) models.ValidationResult {
	var result models.ValidationResult
	if sheet.Structure == nil || len(sheet.Structure.Units) == 0 {
		result.Add(models.ValidationIssue{
			Code:    CodeEmptyStructure,
			Message: "the association structure has no units",
		})
		return result
	}
	if len(sheet.Expenses) == 0 {
		result.Add(models.ValidationIssue{
			Severity: models.SeverityWarning,
			Code:     CodeNoExpenses,
			Message:  "the sheet has no expenses",
		})
	}

	comp := Compute(sheet)
	for i := range sheet.Expenses {
		e := &sheet.Expenses[i]
		validateExpense(&result, e, sheet.Structure.Units, comp.Allocations[e.ID], comp.Differences[e.ID])
	}
	return result
}

func validateExpense(result *models.ValidationResult, e *models.Expense, units []models.Unit, alloc Allocation, diff Difference) {
	issue := func(code, entityID, unitID, format string, args ...any) models.ValidationIssue {
		return models.ValidationIssue{
			Code:      code,
			ExpenseID: e.ID,
			EntityID:  entityID,
			UnitID:    unitID,
			Message:   fmt.Sprintf("%s: ", e.Name) + fmt.Sprintf(format, args...),
		}
	}

	if e.Policy.Redistributes() {
		var billed bool
		for _, b := range alloc.Buckets {
			if !b.Skipped {
				billed = true
			}
		}
		if !billed {
			w := issue(CodeZeroAmountExpense, "", "", "no amount entered")
			w.Severity = models.SeverityWarning
			result.Add(w)
		}
	}

	for _, b := range alloc.Buckets {
		if b.Skipped {
			continue
		}
		if e.Policy.Redistributes() && b.Remainder < -Tolerance {
			result.Add(issue(CodeFixedExceedsTarget, b.EntityID, "",
				"fixed amounts exceed the billed %.2f by %.2f", b.Target, -b.Remainder))
		}
		if e.Policy.Redistributes() && b.ZeroBasis {
			result.Add(issue(CodeZeroTotalStructure, b.EntityID, "",
				"units in the bucket have no %s recorded", basisName(e.Policy)))
		}
		if !negligible(b.Unallocated) {
			result.Add(issue(CodeUnallocatedRemainder, b.EntityID, "",
				"%.2f could not be assigned to any unit", b.Unallocated))
		}
	}

	switch e.Policy {
	case models.PolicyConsumption:
		validateMeasured(result, e, units, func(u models.Unit) bool {
			_, ok := e.UnitConsumption(u.ID)
			return ok
		}, func(u models.Unit) models.ValidationIssue {
			return issue(CodeMissingConsumption, "", u.ID, "no consumption entered for unit %s", u.Number)
		})
		if e.UnitPrice == 0 && len(e.Consumption)+len(e.Meters) > 0 {
			result.Add(issue(CodeMissingUnitPrice, "", "", "unit price is not set"))
		}
		for _, b := range diff.Buckets {
			if b.Skipped {
				continue
			}
			if !negligible(b.Gap - b.Distributed) {
				result.Add(issue(CodeUnresolvedDifference, b.EntityID, "",
					"difference of %.2f has no unit to be assigned to", b.Gap-b.Distributed))
			}
		}
	case models.PolicyIndividual:
		validateMeasured(result, e, units, func(u models.Unit) bool {
			_, ok := e.IndividualAmounts[u.ID]
			return ok
		}, func(u models.Unit) models.ValidationIssue {
			return issue(CodeMissingIndividualAmount, "", u.ID, "no amount entered for unit %s", u.Number)
		})
		for _, b := range alloc.Buckets {
			if b.Target == 0 {
				continue
			}
			if d := b.Target - b.Allocated; !negligible(d) {
				result.Add(issue(CodeIndividualMismatch, b.EntityID, "",
					"individual amounts total %.2f but %.2f was billed", b.Allocated, b.Target))
			}
		}
	}
}

func validateMeasured(result *models.ValidationResult, e *models.Expense, units []models.Unit, entered func(models.Unit) bool, missing func(models.Unit) models.ValidationIssue) {
	for _, u := range units {
		p := e.ParticipationFor(u.ID)
		if p.Excluded() || p.Fixed() {
			continue
		}
		if !entered(u) {
			result.Add(missing(u))
		}
	}
}

func basisName(p models.DistributionPolicy) string {
	if p == models.PolicyBySurface {
		return "surface"
	}
	return "persons"
}
