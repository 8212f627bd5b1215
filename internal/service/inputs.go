package service

import (
	"github.com/go-playground/validator/v10"

	"github.com/mmynk/blocsheet/internal/models"
)

var validate = validator.New()

// CreateSheetInput describes the first sheet of an association.
type CreateSheetInput struct {
	AssociationID string `validate:"required"`
	Period        string `validate:"required"`

	// InitialBalances are opening balances per unit id, typed in when the
	// association starts using the system with arrears already on the books.
	InitialBalances map[string]models.CarriedBalance

	// Penalty overrides the service default when set.
	Penalty *models.PenaltyConfig

	Difference map[string]models.DifferenceConfig
	Notes      string
}

// ConfigInput updates the configuration snapshot of an in-progress sheet.
// Nil fields are left untouched.
type ConfigInput struct {
	Penalty    *PenaltyUpdate
	Difference map[string]models.DifferenceConfig
}

// PenaltyUpdate changes the penalty policy field by field. A nil Rate or an
// empty PaymentOrder keeps the current value.
type PenaltyUpdate struct {
	Rate         *float64            `validate:"omitempty,gte=0,lte=1"`
	PaymentOrder models.PaymentOrder `validate:"omitempty,oneof=arrears_first current_first proportional"`
}

func (u PenaltyUpdate) apply(c models.PenaltyConfig) models.PenaltyConfig {
	if u.Rate != nil {
		c.Rate = *u.Rate
	}
	if u.PaymentOrder != "" {
		c.PaymentOrder = u.PaymentOrder
	}
	return c.WithDefaults()
}

// PublishInput carries what publish needs beyond the sheet itself.
type PublishInput struct {
	// Payments already collected for the period; they are attached to the
	// published sheet and feed the carry-forward.
	Payments []models.Payment

	// Penalty overrides the sheet's configured penalty policy.
	Penalty *models.PenaltyConfig

	PublishedBy string
}

func checkStruct(field string, v any) error {
	if err := validate.Struct(v); err != nil {
		return &InputError{Field: field, Reason: "invalid payload", Err: err}
	}
	return nil
}

func checkConfig(penalty *models.PenaltyConfig, difference map[string]models.DifferenceConfig) error {
	if penalty != nil {
		if err := checkStruct("penalty", penalty); err != nil {
			return err
		}
	}
	for name, cfg := range difference {
		if name == "" {
			return invalid("difference", "expense name is required")
		}
		if err := checkStruct("difference."+name, cfg); err != nil {
			return err
		}
	}
	return nil
}

func checkBalances(field string, balances map[string]models.CarriedBalance, st *models.Structure) error {
	for unitID, b := range balances {
		if _, ok := st.Unit(unitID); !ok {
			return invalid(field, "unknown unit "+unitID)
		}
		if b.Restante < 0 || b.Penalties < 0 {
			return invalid(field, "negative balance for unit "+unitID)
		}
	}
	return nil
}

// checkExpense validates an expense against the structure it will be
// computed with.
func checkExpense(e *models.Expense, st *models.Structure) error {
	if err := checkStruct("expense", e); err != nil {
		return err
	}
	if e.Policy == models.PolicyConsumption && e.Amount != 0 {
		return invalid("amount", "consumption expenses are billed through invoiced_amount or amounts_by_entity")
	}
	if e.Granular() && len(e.AmountsByEntity) == 0 && e.Policy.Redistributes() {
		return invalid("amounts_by_entity", "required for "+string(e.Granularity)+" expenses")
	}
	for id, v := range e.AmountsByEntity {
		if v < 0 {
			return invalid("amounts_by_entity", "negative amount for "+id)
		}
	}
	for _, m := range []map[string]float64{e.Consumption, e.IndividualAmounts} {
		for unitID, v := range m {
			if v < 0 {
				return invalid("expense", "negative value for unit "+unitID)
			}
		}
	}
	for unitID, readings := range e.Meters {
		for _, r := range readings {
			if r.Previous < 0 || r.Current < 0 {
				return invalid("meters", "negative index for unit "+unitID)
			}
		}
	}
	for unitID, p := range e.Participation {
		if err := checkParticipation(unitID, p, st); err != nil {
			return err
		}
	}
	if e.Difference != nil {
		if err := checkStruct("difference", e.Difference); err != nil {
			return err
		}
	}
	return nil
}

func checkParticipation(unitID string, p models.Participation, st *models.Structure) error {
	if _, ok := st.Unit(unitID); !ok {
		return invalid("participation", "unknown unit "+unitID)
	}
	return checkStruct("participation", p)
}

func checkPayment(p *models.Payment, st *models.Structure) error {
	if err := checkStruct("payment", p); err != nil {
		return err
	}
	if _, ok := st.Unit(p.UnitID); !ok {
		return invalid("unit_id", "unknown unit "+p.UnitID)
	}
	if p.Assigned() > p.Amount+0.005 {
		return invalid("payment", "breakdown exceeds amount")
	}
	return nil
}
