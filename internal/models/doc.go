// Package models defines the core domain models for blocsheet.
//
// # Billing periods
//
// A Sheet is one month's ledger for an association. Exactly one sheet per
// association is in progress at any time; at most one is published; every
// older sheet is archived. A published sheet's MaintenanceTable is frozen at
// publish time and never recomputed.
//
// # Structure
//
// Sheets reference an immutable Structure version (buildings, stairwells and
// units) by id. Structural edits produce a new version instead of mutating
// the one a published sheet points at.
//
// # Money
//
// Amounts are float64 in the association's currency. Computations keep full
// precision internally and round to 2 decimals only on MaintenanceRow and
// UnitBalance values.
//
// # Design Principles
//
//  1. Raw inputs only: expenses store what was entered, never derived shares
//  2. Use ID strings instead of pointers for relationships
//  3. One canonical shape per record; legacy shapes are migrated outside the core
package models
