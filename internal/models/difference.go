package models

// DifferenceMethod is the rule used to spread an invoice gap.
type DifferenceMethod string

const (
	DifferencePerUnit     DifferenceMethod = "perUnit"
	DifferencePerPerson   DifferenceMethod = "perPerson"
	DifferenceConsumption DifferenceMethod = "consumption"
)

// DifferenceAdjustment is an optional second pass over difference shares.
type DifferenceAdjustment string

const (
	AdjustmentNone          DifferenceAdjustment = "none"
	AdjustmentParticipation DifferenceAdjustment = "participation"
	AdjustmentApartmentType DifferenceAdjustment = "apartmentType"
)

// DifferenceConfig configures reconciliation of a consumption expense.
type DifferenceConfig struct {
	Method     DifferenceMethod     `validate:"omitempty,oneof=perUnit perPerson consumption"`
	Adjustment DifferenceAdjustment `validate:"omitempty,oneof=none participation apartmentType"`

	// ApartmentTypeRatios maps Unit.ApartmentType to a weight, 1 when missing.
	ApartmentTypeRatios map[string]float64

	IncludeExcluded bool
	IncludeFixed    bool
}

// WithDefaults fills zero fields.
func (c DifferenceConfig) WithDefaults() DifferenceConfig {
	if c.Method == "" {
		c.Method = DifferencePerUnit
	}
	if c.Adjustment == "" {
		c.Adjustment = AdjustmentNone
	}
	return c
}
