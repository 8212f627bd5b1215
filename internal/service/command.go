package service

import (
	"context"
	"errors"

	"github.com/mmynk/blocsheet/internal/models"
)

// ErrNotApplied is returned by Rollback when the command was never applied.
var ErrNotApplied = errors.New("command not applied")

// ParticipationCommand changes one unit's participation on an expense and
// can undo the change. Callers that update their view before the write is
// confirmed apply the command and roll it back if the write fails.
type ParticipationCommand struct {
	svc       *SheetService
	SheetID   string
	ExpenseID string
	UnitID    string

	// Next is the override to write; nil restores integral participation.
	Next *models.Participation

	previous *models.Participation
	applied  bool
}

// NewParticipationCommand builds a command that sets next as the unit's override.
func NewParticipationCommand(svc *SheetService, sheetID, expenseID, unitID string, next *models.Participation) *ParticipationCommand {
	return &ParticipationCommand{
		svc:       svc,
		SheetID:   sheetID,
		ExpenseID: expenseID,
		UnitID:    unitID,
		Next:      next,
	}
}

// NewExclusionToggle builds a command that excludes the unit from the
// expense, or restores integral participation if it is already excluded.
func NewExclusionToggle(ctx context.Context, svc *SheetService, sheetID, expenseID, unitID string) (*ParticipationCommand, error) {
	current, err := svc.GetParticipation(ctx, sheetID, expenseID, unitID)
	if err != nil {
		return nil, err
	}
	var next *models.Participation
	if !current.Excluded() {
		next = &models.Participation{Kind: models.ParticipationExcluded}
	}
	return NewParticipationCommand(svc, sheetID, expenseID, unitID, next), nil
}

// Apply writes the new override and remembers the one it replaced.
func (c *ParticipationCommand) Apply(ctx context.Context) error {
	previous, err := c.svc.SetParticipation(ctx, c.SheetID, c.ExpenseID, c.UnitID, c.Next)
	if err != nil {
		return err
	}
	c.previous = previous
	c.applied = true
	return nil
}

// Rollback restores the override that Apply replaced.
func (c *ParticipationCommand) Rollback(ctx context.Context) error {
	if !c.applied {
		return ErrNotApplied
	}
	if _, err := c.svc.SetParticipation(ctx, c.SheetID, c.ExpenseID, c.UnitID, c.previous); err != nil {
		return err
	}
	c.applied = false
	return nil
}

// Applied reports whether the command is currently in effect.
func (c *ParticipationCommand) Applied() bool { return c.applied }
