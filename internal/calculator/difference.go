package calculator

import "github.com/mmynk/blocsheet/internal/models"

// BucketDifference reports reconciliation of one bucket.
type BucketDifference struct {
	EntityID  string
	Expected  float64
	Allocated float64
	Gap       float64

	// Distributed is the part of Gap spread over units. It differs from Gap
	// only when the bucket has no unit to carry it.
	Distributed float64
	Skipped     bool
	UnitIDs     []string
}

// Difference is the per unit difference for one consumption expense.
type Difference struct {
	ExpenseID string
	Shares    map[string]float64
	Buckets   []BucketDifference
}

// Unresolved returns the part of the gap that could not be assigned to any unit.
func (d Difference) Unresolved() float64 {
	var total float64
	for _, b := range d.Buckets {
		total += b.Gap - b.Distributed
	}
	return total
}

// Reconcile spreads the gap between the invoiced amount and the sum of
// consumption shares over the bucket's participating units.
//
// Algorithm:
//   - Expected is the invoice of the bucket; buckets without one are skipped
//   - Gap = expected - allocated; gaps below one cent are ignored
//   - Participating units exclude excluded and fixed units unless the config
//     includes them; when none remain every unit in the bucket participates
//   - The gap is split per unit, per person or per consumption
//   - An optional adjustment reweights shares and renormalizes them to the gap
func Reconcile(expense *models.Expense, units []models.Unit, alloc Allocation, cfg models.DifferenceConfig) Difference {
	diff := Difference{ExpenseID: expense.ID, Shares: make(map[string]float64)}
	if expense.Policy != models.PolicyConsumption {
		return diff
	}
	cfg = cfg.WithDefaults()

	for _, b := range GroupUnits(expense, units) {
		bd := BucketDifference{EntityID: b.EntityID, Expected: b.Target}
		for _, u := range b.Units {
			bd.Allocated += alloc.Shares[u.ID]
		}
		if b.Target == 0 {
			bd.Skipped = true
			diff.Buckets = append(diff.Buckets, bd)
			continue
		}
		bd.Gap = b.Target - bd.Allocated
		if negligible(bd.Gap) {
			bd.Skipped = true
			diff.Buckets = append(diff.Buckets, bd)
			continue
		}

		members := participants(expense, b.Units, cfg)
		if len(members) == 0 {
			diff.Buckets = append(diff.Buckets, bd)
			continue
		}

		shares := adjust(expense, members, differenceShares(expense, members, bd.Gap, cfg.Method), bd.Gap, cfg)
		for i, u := range members {
			diff.Shares[u.ID] += shares[i]
			bd.Distributed += shares[i]
			bd.UnitIDs = append(bd.UnitIDs, u.ID)
		}
		diff.Buckets = append(diff.Buckets, bd)
	}
	return diff
}

func participants(expense *models.Expense, units []models.Unit, cfg models.DifferenceConfig) []models.Unit {
	var members []models.Unit
	for _, u := range units {
		p := expense.ParticipationFor(u.ID)
		if p.Excluded() && !cfg.IncludeExcluded {
			continue
		}
		if p.Fixed() && !cfg.IncludeFixed {
			continue
		}
		members = append(members, u)
	}
	if len(members) == 0 {
		return units
	}
	return members
}

func differenceShares(expense *models.Expense, units []models.Unit, gap float64, method models.DifferenceMethod) []float64 {
	basis := make([]float64, len(units))
	var total float64
	for i, u := range units {
		switch method {
		case models.DifferencePerPerson:
			basis[i] = float64(u.Persons)
		case models.DifferenceConsumption:
			basis[i], _ = expense.UnitConsumption(u.ID)
		default:
			basis[i] = 1
		}
		total += basis[i]
	}

	shares := make([]float64, len(units))
	for i := range units {
		if total == 0 {
			shares[i] = gap / float64(len(units))
			continue
		}
		shares[i] = gap * basis[i] / total
	}
	return shares
}

func adjust(expense *models.Expense, units []models.Unit, shares []float64, gap float64, cfg models.DifferenceConfig) []float64 {
	if cfg.Adjustment == models.AdjustmentNone {
		return shares
	}

	weighted := make([]float64, len(shares))
	var total float64
	for i, u := range units {
		factor := 1.0
		switch cfg.Adjustment {
		case models.AdjustmentParticipation:
			factor = expense.ParticipationFor(u.ID).Multiplier()
		case models.AdjustmentApartmentType:
			if r, ok := cfg.ApartmentTypeRatios[u.ApartmentType]; ok {
				factor = r
			}
		}
		weighted[i] = shares[i] * factor
		total += weighted[i]
	}
	if total == 0 {
		return shares
	}
	for i := range weighted {
		weighted[i] = weighted[i] / total * gap
	}
	return weighted
}
