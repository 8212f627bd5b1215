package models

// MaintenanceRow is one unit's charges for a billing period.
type MaintenanceRow struct {
	UnitID        string
	UnitNumber    string
	OwnerName     string
	Persons       int
	BuildingID    string
	BuildingName  string
	StairwellID   string
	StairwellName string

	// CurrentCharges is the sum of distribution and difference shares.
	CurrentCharges  float64
	CarriedRestante float64
	Penalties       float64
	TotalDue        float64

	// ExpenseBreakdown maps expense id to the unit's distribution share.
	ExpenseBreakdown map[string]float64

	// DifferenceBreakdown maps expense id to the unit's reconciliation share.
	DifferenceBreakdown map[string]float64
}

// UnitBalance is computed from a row and the payments recorded for the unit.
type UnitBalance struct {
	Original  float64
	Paid      float64
	Remaining float64
}
