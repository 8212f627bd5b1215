package models

// ParticipationKind enumerates per unit exceptions to the default distribution.
type ParticipationKind string

const (
	ParticipationIntegral   ParticipationKind = "integral"
	ParticipationExcluded   ParticipationKind = "excluded"
	ParticipationPercentage ParticipationKind = "percentage"
	ParticipationFixed      ParticipationKind = "fixed"
)

// FixedBasis tells whether a fixed amount is per apartment or per person.
type FixedBasis string

const (
	FixedPerUnit   FixedBasis = "perUnit"
	FixedPerPerson FixedBasis = "perPerson"
)

// Participation is a unit's override for one expense.
type Participation struct {
	Kind ParticipationKind `validate:"required,oneof=integral excluded percentage fixed"`

	// Percent is 0..100, used with ParticipationPercentage.
	Percent float64 `validate:"gte=0,lte=100"`

	// Amount is the fixed value, used with ParticipationFixed.
	Amount float64 `validate:"gte=0"`
	Basis  FixedBasis `validate:"omitempty,oneof=perUnit perPerson"`
}

// Excluded reports whether the unit does not take part in the expense.
func (p Participation) Excluded() bool { return p.Kind == ParticipationExcluded }

// Fixed reports whether the unit pays a fixed amount.
func (p Participation) Fixed() bool { return p.Kind == ParticipationFixed }

// Multiplier is the factor applied to a base share: Percent/100 for
// percentage overrides, 1 otherwise.
func (p Participation) Multiplier() float64 {
	if p.Kind == ParticipationPercentage {
		return p.Percent / 100
	}
	return 1
}

// FixedAmount returns the amount owed under a fixed override.
func (p Participation) FixedAmount(persons int) float64 {
	if p.Basis == FixedPerPerson {
		return p.Amount * float64(persons)
	}
	return p.Amount
}
