package models

// DistributionPolicy is the rule used to split an expense across units.
type DistributionPolicy string

const (
	// PolicyPerUnit splits the amount equally per apartment.
	PolicyPerUnit DistributionPolicy = "perUnit"
	// PolicyPerPerson splits the amount in proportion to registered persons.
	PolicyPerPerson DistributionPolicy = "perPerson"
	// PolicyBySurface splits the amount in proportion to unit surface (cota parte indiviza).
	PolicyBySurface DistributionPolicy = "bySurface"
	// PolicyIndividual charges each unit its recorded individual amount.
	PolicyIndividual DistributionPolicy = "individualAmount"
	// PolicyConsumption charges metered consumption times unit price.
	PolicyConsumption DistributionPolicy = "consumption"
)

// Redistributes reports whether shares are derived by splitting a target
// amount, as opposed to being direct per-unit measurements.
func (p DistributionPolicy) Redistributes() bool {
	switch p {
	case PolicyPerUnit, PolicyPerPerson, PolicyBySurface:
		return true
	}
	return false
}

// EntryGranularity is the organizational level an expense amount was billed at.
type EntryGranularity string

const (
	GranularityTotal        EntryGranularity = "total"
	GranularityPerBuilding  EntryGranularity = "perBuilding"
	GranularityPerStairwell EntryGranularity = "perStairwell"
)

// Expense is a raw expense record entered against a sheet. Nothing derived
// from it is stored; allocation is recomputed on demand.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// Name identifies the expense type ("Apa rece", "Curent scara").
	Name string `validate:"required"`

	Policy      DistributionPolicy `validate:"required,oneof=perUnit perPerson bySurface individualAmount consumption"`
	Granularity EntryGranularity   `validate:"omitempty,oneof=total perBuilding perStairwell"`

	// Amount is the billed total when Granularity is total.
	Amount float64 `validate:"gte=0"`

	// AmountsByEntity is keyed by building or stairwell id when Granularity
	// is not total. For consumption expenses these are the invoiced amounts.
	AmountsByEntity map[string]float64

	// UnitPrice is the price per consumption unit (consumption only).
	UnitPrice float64 `validate:"gte=0"`

	// InvoicedAmount is the supplier invoice total (consumption only, total granularity).
	InvoicedAmount float64 `validate:"gte=0"`

	// Consumption is the declared consumption per unit id.
	Consumption map[string]float64

	// Meters holds index readings per unit id. When present they take
	// precedence over Consumption.
	Meters map[string][]MeterReading

	// IndividualAmounts is the recorded amount per unit id (individualAmount only).
	IndividualAmounts map[string]float64

	// Participation holds per unit overrides. Absent means integral.
	Participation map[string]Participation

	// Difference configures reconciliation of the invoice gap. When nil the
	// sheet's ConfigSnapshot is consulted.
	Difference *DifferenceConfig
}

// MeterReading is a pair of meter indexes for one billing period.
type MeterReading struct {
	Meter    string
	Previous float64
	Current  float64
}

// Granular reports whether the expense is billed per entity.
func (e *Expense) Granular() bool {
	return e.Granularity == GranularityPerBuilding || e.Granularity == GranularityPerStairwell
}

// UnitConsumption returns the consumption of a unit, derived from meter
// index deltas when readings exist and from the declared value otherwise.
// The second result reports whether any value was entered.
func (e *Expense) UnitConsumption(unitID string) (float64, bool) {
	if readings := e.Meters[unitID]; len(readings) > 0 {
		var total float64
		var read bool
		for _, r := range readings {
			if r.Current == 0 {
				continue
			}
			read = true
			if d := r.Current - r.Previous; d > 0 {
				total += d
			}
		}
		if read {
			return total, true
		}
	}
	v, ok := e.Consumption[unitID]
	return v, ok
}

// ParticipationFor returns the override of a unit, integral when absent.
func (e *Expense) ParticipationFor(unitID string) Participation {
	if p, ok := e.Participation[unitID]; ok {
		return p
	}
	return Participation{Kind: ParticipationIntegral}
}
