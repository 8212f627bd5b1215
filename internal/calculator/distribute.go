package calculator

import (
	"sort"

	"github.com/mmynk/blocsheet/internal/models"
)

// Bucket is the set of units sharing one entry granularity bucket of an
// expense, together with the amount billed for it.
type Bucket struct {
	// EntityID is the building or stairwell id, empty for total granularity.
	EntityID string
	Target   float64
	Units    []models.Unit
}

// BucketAllocation reports how one bucket was allocated.
type BucketAllocation struct {
	EntityID string
	Target   float64

	// Remainder is the target minus fixed amounts, i.e. what was redistributed.
	Remainder float64

	// Allocated is the sum of all shares in the bucket.
	Allocated float64

	// Unallocated is the part of Remainder no unit could absorb.
	Unallocated float64

	// ZeroBasis is set when the policy basis (persons, surface) summed to
	// zero and the remainder was split equally instead.
	ZeroBasis bool

	Skipped bool
	UnitIDs []string
}

// Allocation is the Distribution Engine output for one expense.
type Allocation struct {
	ExpenseID string
	Shares    map[string]float64
	Buckets   []BucketAllocation
}

// GroupUnits splits units into the expense's entry granularity buckets.
// Buckets follow the order in which their entities first appear in units;
// entities billed but without any unit are appended in id order.
func GroupUnits(expense *models.Expense, units []models.Unit) []Bucket {
	if !expense.Granular() {
		target := expense.Amount
		if expense.Policy == models.PolicyConsumption {
			target = expense.InvoicedAmount
		}
		return []Bucket{{Target: target, Units: units}}
	}

	index := make(map[string]int)
	var buckets []Bucket
	for _, u := range units {
		key := u.BuildingID
		if expense.Granularity == models.GranularityPerStairwell {
			key = u.StairwellID
		}
		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, Bucket{EntityID: key, Target: expense.AmountsByEntity[key]})
		}
		buckets[i].Units = append(buckets[i].Units, u)
	}

	var orphans []string
	for key := range expense.AmountsByEntity {
		if _, ok := index[key]; !ok {
			orphans = append(orphans, key)
		}
	}
	sort.Strings(orphans)
	for _, key := range orphans {
		buckets = append(buckets, Bucket{EntityID: key, Target: expense.AmountsByEntity[key]})
	}
	return buckets
}

// Distribute computes the share owed by every unit for one expense.
//
// Fixed and excluded units are settled first. Redistributing policies then
// split the bucket remainder over the other units in proportion to their
// base share weighted by percentage overrides, so the bucket always sums to
// its target. Measured policies (individual amounts, consumption) keep their
// base shares as is.
func Distribute(expense *models.Expense, units []models.Unit) Allocation {
	alloc := Allocation{
		ExpenseID: expense.ID,
		Shares:    make(map[string]float64, len(units)),
	}
	for _, b := range GroupUnits(expense, units) {
		alloc.Buckets = append(alloc.Buckets, distributeBucket(expense, b, alloc.Shares))
	}
	return alloc
}

func distributeBucket(expense *models.Expense, b Bucket, shares map[string]float64) BucketAllocation {
	ba := BucketAllocation{EntityID: b.EntityID, Target: b.Target}
	for _, u := range b.Units {
		ba.UnitIDs = append(ba.UnitIDs, u.ID)
	}

	redistribute := expense.Policy.Redistributes()
	if redistribute && b.Target == 0 {
		ba.Skipped = true
		return ba
	}

	remainder := b.Target
	var rest []models.Unit
	for _, u := range b.Units {
		p := expense.ParticipationFor(u.ID)
		switch {
		case p.Excluded():
			shares[u.ID] = 0
		case p.Fixed():
			amount := p.FixedAmount(u.Persons)
			shares[u.ID] = amount
			remainder -= amount
			ba.Allocated += amount
		default:
			rest = append(rest, u)
		}
	}
	ba.Remainder = remainder

	if !redistribute {
		for _, u := range rest {
			share := measuredShare(expense, u) * expense.ParticipationFor(u.ID).Multiplier()
			shares[u.ID] = share
			ba.Allocated += share
		}
		return ba
	}

	if len(rest) == 0 {
		ba.Unallocated = remainder
		return ba
	}

	base, zeroBasis := baseShares(expense.Policy, rest, remainder)
	ba.ZeroBasis = zeroBasis

	weights := make([]float64, len(rest))
	var total float64
	for i, u := range rest {
		weights[i] = base[i] * expense.ParticipationFor(u.ID).Multiplier()
		total += weights[i]
	}
	if total == 0 {
		for _, u := range rest {
			shares[u.ID] = 0
		}
		ba.Unallocated = remainder
		return ba
	}
	for i, u := range rest {
		share := weights[i] / total * remainder
		shares[u.ID] = share
		ba.Allocated += share
	}
	return ba
}

// baseShares returns the unweighted share of each unit for redistributing
// policies. When the policy basis sums to zero the remainder is split
// equally and the second result is true.
func baseShares(policy models.DistributionPolicy, units []models.Unit, remainder float64) ([]float64, bool) {
	basis := make([]float64, len(units))
	var total float64
	for i, u := range units {
		switch policy {
		case models.PolicyPerPerson:
			basis[i] = float64(u.Persons)
		case models.PolicyBySurface:
			basis[i] = u.Surface
		default:
			basis[i] = 1
		}
		total += basis[i]
	}

	shares := make([]float64, len(units))
	if total == 0 {
		for i := range shares {
			shares[i] = remainder / float64(len(units))
		}
		return shares, true
	}
	for i := range shares {
		shares[i] = remainder / total * basis[i]
	}
	return shares, false
}

func measuredShare(expense *models.Expense, u models.Unit) float64 {
	switch expense.Policy {
	case models.PolicyIndividual:
		return expense.IndividualAmounts[u.ID]
	case models.PolicyConsumption:
		c, _ := expense.UnitConsumption(u.ID)
		return c * expense.UnitPrice
	}
	return 0
}
