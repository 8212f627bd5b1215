package models

import "time"

// Payment is money received from a unit against a published sheet.
type Payment struct {
	// ID is the unique identifier for the payment (UUID format).
	ID string

	// UnitID is the unit the payment is credited to.
	UnitID string `validate:"required"`

	// Amount is the total amount received.
	Amount float64 `validate:"gt=0"`

	// Restante, Maintenance and Penalties optionally split Amount into the
	// components the payer intended to settle. The unassigned rest is applied
	// following the sheet's PaymentOrder.
	Restante    float64 `validate:"gte=0"`
	Maintenance float64 `validate:"gte=0"`
	Penalties   float64 `validate:"gte=0"`

	// CreatedAt is when the payment was recorded.
	CreatedAt time.Time

	// RecordedBy is the operator who recorded the payment.
	RecordedBy string

	// Note is an optional description, e.g. a receipt number.
	Note string
}

// Assigned returns the part of Amount with an explicit component.
func (p Payment) Assigned() float64 {
	return p.Restante + p.Maintenance + p.Penalties
}
