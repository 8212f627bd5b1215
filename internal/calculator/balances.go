package calculator

import "github.com/mmynk/blocsheet/internal/models"

// Settlement reports how a unit's payments were applied to its row.
type Settlement struct {
	PaidPenalties float64
	PaidRestante  float64
	PaidCurrent   float64

	// Overpaid is money left after every component was settled.
	Overpaid float64
}

type dues struct {
	penalties, restante, current float64
}

// ApplyPayments applies payments to the penalty, arrears and current
// components of a row.
//
// Algorithm:
//   - Explicit components of each payment settle their component first,
//     capped at what is still due
//   - The unassigned rest of every payment goes to a pool
//   - The pool settles components in the configured order; proportional
//     splits it by the outstanding amount of each component
//
// A payment whose components add up to more than its amount is treated as
// fully unassigned.
func ApplyPayments(row models.MaintenanceRow, payments []models.Payment, order models.PaymentOrder) Settlement {
	left := dues{penalties: row.Penalties, restante: row.CarriedRestante, current: row.CurrentCharges}
	var s Settlement
	var pool float64

	for _, p := range payments {
		if p.Assigned() > p.Amount+Tolerance {
			pool += p.Amount
			continue
		}
		pen := take(&left.penalties, p.Penalties)
		res := take(&left.restante, p.Restante)
		cur := take(&left.current, p.Maintenance)
		s.PaidPenalties += pen
		s.PaidRestante += res
		s.PaidCurrent += cur
		pool += p.Amount - pen - res - cur
	}

	switch order {
	case models.PaymentOrderCurrentFirst:
		pool = drain(&s, &left, pool, false)
	case models.PaymentOrderProportional:
		outstanding := left.penalties + left.restante + left.current
		if outstanding > 0 && pool > 0 {
			portion := pool
			if portion > outstanding {
				portion = outstanding
			}
			pen := take(&left.penalties, portion*left.penalties/outstanding)
			res := take(&left.restante, portion*left.restante/outstanding)
			cur := take(&left.current, portion-pen-res)
			s.PaidPenalties += pen
			s.PaidRestante += res
			s.PaidCurrent += cur
			pool -= pen + res + cur
		}
		pool = drain(&s, &left, pool, true)
	default:
		pool = drain(&s, &left, pool, true)
	}

	if pool > 0 {
		s.Overpaid = Round2(pool)
	}
	s.PaidPenalties = Round2(s.PaidPenalties)
	s.PaidRestante = Round2(s.PaidRestante)
	s.PaidCurrent = Round2(s.PaidCurrent)
	return s
}

// UnpaidCurrent returns the current charges the settlement left unpaid.
func (s Settlement) UnpaidCurrent(row models.MaintenanceRow) float64 {
	v := Round2(row.CurrentCharges - s.PaidCurrent)
	if v < 0 {
		return 0
	}
	return v
}

func take(due *float64, amount float64) float64 {
	if amount <= 0 || *due <= 0 {
		return 0
	}
	if amount > *due {
		amount = *due
	}
	*due -= amount
	return amount
}

// drain applies the pool in arrears-first order (penalties, arrears, current)
// or in current-first order when arrearsFirst is false.
func drain(s *Settlement, left *dues, pool float64, arrearsFirst bool) float64 {
	steps := []struct {
		due  *float64
		paid *float64
	}{
		{&left.penalties, &s.PaidPenalties},
		{&left.restante, &s.PaidRestante},
		{&left.current, &s.PaidCurrent},
	}
	if !arrearsFirst {
		steps[0], steps[2] = steps[2], steps[0]
	}
	for _, st := range steps {
		got := take(st.due, pool)
		*st.paid += got
		pool -= got
	}
	return pool
}

// ComputeUnitBalance returns what a unit owed, paid and still owes on a row.
func ComputeUnitBalance(row models.MaintenanceRow, payments []models.Payment) models.UnitBalance {
	var amounts []float64
	for _, p := range payments {
		if p.UnitID == row.UnitID {
			amounts = append(amounts, p.Amount)
		}
	}
	paid := Round2(Sum(amounts...))
	remaining := Round2(row.TotalDue - paid)
	if remaining < 0 {
		remaining = 0
	}
	return models.UnitBalance{Original: row.TotalDue, Paid: paid, Remaining: remaining}
}

// Carry is the opening state of a successor sheet.
type Carry struct {
	Carried       map[string]models.CarriedBalance
	Balances      map[string]models.UnitBalance
	PreviousTotal float64
}

// CarryForward derives the successor's opening balances from a frozen
// table and the payments recorded against it. Each unit carries its
// remaining balance as arrears and a new penalty of rate times the current
// charges it left unpaid. Arrears and earlier penalties accrue nothing.
func CarryForward(rows []models.MaintenanceRow, payments []models.Payment, cfg models.PenaltyConfig) Carry {
	cfg = cfg.WithDefaults()
	byUnit := make(map[string][]models.Payment)
	for _, p := range payments {
		byUnit[p.UnitID] = append(byUnit[p.UnitID], p)
	}

	c := Carry{
		Carried:  make(map[string]models.CarriedBalance, len(rows)),
		Balances: make(map[string]models.UnitBalance, len(rows)),
	}
	var remaining []float64
	for _, row := range rows {
		carried, balance := CarryUnit(row, byUnit[row.UnitID], cfg)
		c.Carried[row.UnitID] = carried
		c.Balances[row.UnitID] = balance
		remaining = append(remaining, balance.Remaining)
	}
	c.PreviousTotal = Round2(Sum(remaining...))
	return c
}

// CarryUnit computes one unit's carried balance. payments must belong to
// the row's unit.
func CarryUnit(row models.MaintenanceRow, payments []models.Payment, cfg models.PenaltyConfig) (models.CarriedBalance, models.UnitBalance) {
	cfg = cfg.WithDefaults()
	balance := ComputeUnitBalance(row, payments)
	if balance.Remaining == 0 {
		return models.CarriedBalance{}, balance
	}
	s := ApplyPayments(row, payments, cfg.PaymentOrder)
	return models.CarriedBalance{
		Restante:  balance.Remaining,
		Penalties: Round2(s.UnpaidCurrent(row) * cfg.Rate),
	}, balance
}
