package models

import "time"

// SheetStatus enumerates billing period lifecycle stages.
type SheetStatus string

const (
	SheetStatusInProgress SheetStatus = "in_progress"
	SheetStatusPublished  SheetStatus = "published"
	SheetStatusArchived   SheetStatus = "archived"
)

// Sheet is a billing period for one association.
type Sheet struct {
	// ID is the unique identifier for the sheet (UUID format).
	ID string

	// AssociationID is the association this sheet bills.
	AssociationID string

	// Period is the human label of the billing month, "2025-03" by convention.
	Period string

	Status SheetStatus

	// StructureID references the immutable structure version used by this sheet.
	StructureID string

	// Structure is the resolved structure version. It is populated by the
	// service layer when loading a sheet and is never persisted with the sheet.
	Structure *Structure `json:"-" bson:"-"`

	// Expenses are the raw expense records entered for this period.
	Expenses []Expense

	// MaintenanceTable is nil while in progress and frozen at publish time.
	MaintenanceTable []MaintenanceRow

	// Payments are recorded only once the sheet is published.
	Payments []Payment

	// Balances carries the opening balances transferred from the predecessor.
	Balances Balances

	// InitialBalances are opening balances typed in for the association's
	// first sheet, used when Balances.Carried has no entry for a unit.
	InitialBalances map[string]CarriedBalance

	ConfigSnapshot ConfigSnapshot

	// SnapshotHash is the SHA-256 of the frozen maintenance table.
	SnapshotHash string

	PublishedBy string
	Notes       string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PublishedAt *time.Time
	ArchivedAt  *time.Time
}

// CarriedBalance is a unit's opening balance in a billing period.
type CarriedBalance struct {
	Restante  float64
	Penalties float64
}

// Balances holds the carry-forward state of a sheet.
type Balances struct {
	// PreviousTotal is the sum of remaining balances transferred from the predecessor.
	PreviousTotal float64

	// TransferredFrom is the id of the sheet the balances were carried from.
	TransferredFrom string

	// Carried maps unit id to its opening balance.
	Carried map[string]CarriedBalance

	// ApartmentBalances mirrors the predecessor's per-unit balance and is kept
	// current as payments are recorded against the predecessor.
	ApartmentBalances map[string]UnitBalance
}

// ConfigSnapshot is the policy configuration copied at sheet creation time.
type ConfigSnapshot struct {
	Penalty PenaltyConfig

	// Difference holds per expense name reconciliation settings used when the
	// expense itself carries none.
	Difference map[string]DifferenceConfig

	CreatedFromSheet string
}

// PaymentOrder decides which balance component a payment settles first.
type PaymentOrder string

const (
	PaymentOrderArrearsFirst PaymentOrder = "arrears_first"
	PaymentOrderCurrentFirst PaymentOrder = "current_first"
	PaymentOrderProportional PaymentOrder = "proportional"
)

// DefaultPenaltyRate is applied when an association configures none.
const DefaultPenaltyRate = 0.02

// PenaltyConfig configures penalty accrual at carry-forward.
type PenaltyConfig struct {
	// Rate is a fraction, 0.02 meaning 2%.
	Rate float64 `validate:"gte=0,lte=1"`

	PaymentOrder PaymentOrder `validate:"omitempty,oneof=arrears_first current_first proportional"`
}

// WithDefaults fills zero fields.
func (c PenaltyConfig) WithDefaults() PenaltyConfig {
	if c.PaymentOrder == "" {
		c.PaymentOrder = PaymentOrderArrearsFirst
	}
	return c
}

// CarriedFor returns the opening balance of a unit.
func (s *Sheet) CarriedFor(unitID string) CarriedBalance {
	if b, ok := s.Balances.Carried[unitID]; ok {
		return b
	}
	return s.InitialBalances[unitID]
}

// FindExpense returns the index of the expense with the given id, or -1.
func (s *Sheet) FindExpense(expenseID string) int {
	for i := range s.Expenses {
		if s.Expenses[i].ID == expenseID {
			return i
		}
	}
	return -1
}
