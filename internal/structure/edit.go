package structure

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/blocsheet/internal/models"
)

// Draft is a mutable working copy of a structure version.
type Draft struct {
	s *models.Structure
}

// Edit derives a new structure version from base by applying fn to a draft.
// base is never modified. The result gets a fresh id, base as parent and the
// next version number. If fn fails or the result is inconsistent no version
// is produced.
func Edit(base *models.Structure, now time.Time, fn func(d *Draft) error) (*models.Structure, error) {
	d := &Draft{s: Clone(base)}
	if err := fn(d); err != nil {
		return nil, err
	}
	next := d.s
	next.ID = uuid.New().String()
	next.ParentID = base.ID
	next.Version = base.Version + 1
	next.CreatedAt = now
	if err := Check(next); err != nil {
		return nil, err
	}
	return next, nil
}

// AddBuilding appends a building, assigning an id when empty.
func (d *Draft) AddBuilding(b models.Building) string {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	d.s.Buildings = append(d.s.Buildings, b)
	return b.ID
}

// UpdateBuilding replaces the building with the same id.
func (d *Draft) UpdateBuilding(b models.Building) error {
	for i := range d.s.Buildings {
		if d.s.Buildings[i].ID == b.ID {
			d.s.Buildings[i] = b
			return nil
		}
	}
	return fmt.Errorf("%w: building %q", ErrUnknownEntity, b.ID)
}

// RemoveBuilding deletes a building with its stairwells and units.
func (d *Draft) RemoveBuilding(id string) error {
	idx := -1
	for i, b := range d.s.Buildings {
		if b.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: building %q", ErrUnknownEntity, id)
	}
	d.s.Buildings = append(d.s.Buildings[:idx], d.s.Buildings[idx+1:]...)

	stairwells := d.s.Stairwells[:0]
	for _, st := range d.s.Stairwells {
		if st.BuildingID != id {
			stairwells = append(stairwells, st)
		}
	}
	d.s.Stairwells = stairwells
	d.filterUnits(func(u models.Unit) bool { return u.BuildingID != id })
	return nil
}

// AddStairwell appends a stairwell, assigning an id when empty.
func (d *Draft) AddStairwell(st models.Stairwell) (string, error) {
	if !d.hasBuilding(st.BuildingID) {
		return "", fmt.Errorf("%w: building %q", ErrUnknownEntity, st.BuildingID)
	}
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	d.s.Stairwells = append(d.s.Stairwells, st)
	return st.ID, nil
}

// RemoveStairwell deletes a stairwell with its units.
func (d *Draft) RemoveStairwell(id string) error {
	idx := -1
	for i, st := range d.s.Stairwells {
		if st.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: stairwell %q", ErrUnknownEntity, id)
	}
	d.s.Stairwells = append(d.s.Stairwells[:idx], d.s.Stairwells[idx+1:]...)
	d.filterUnits(func(u models.Unit) bool { return u.StairwellID != id })
	return nil
}

// AddUnit appends a unit, assigning an id when empty. The unit's building
// is taken from its stairwell.
func (d *Draft) AddUnit(u models.Unit) (string, error) {
	building, ok := d.stairwellBuilding(u.StairwellID)
	if !ok {
		return "", fmt.Errorf("%w: stairwell %q", ErrUnknownEntity, u.StairwellID)
	}
	u.BuildingID = building
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	d.s.Units = append(d.s.Units, u)
	return u.ID, nil
}

// UpdateUnit replaces the unit with the same id.
func (d *Draft) UpdateUnit(u models.Unit) error {
	building, ok := d.stairwellBuilding(u.StairwellID)
	if !ok {
		return fmt.Errorf("%w: stairwell %q", ErrUnknownEntity, u.StairwellID)
	}
	u.BuildingID = building
	for i := range d.s.Units {
		if d.s.Units[i].ID == u.ID {
			d.s.Units[i] = u
			return nil
		}
	}
	return fmt.Errorf("%w: unit %q", ErrUnknownEntity, u.ID)
}

// RemoveUnit deletes a unit.
func (d *Draft) RemoveUnit(id string) error {
	before := len(d.s.Units)
	d.filterUnits(func(u models.Unit) bool { return u.ID != id })
	if len(d.s.Units) == before {
		return fmt.Errorf("%w: unit %q", ErrUnknownEntity, id)
	}
	return nil
}

// Structure exposes the draft for read access inside an edit function.
func (d *Draft) Structure() *models.Structure {
	return d.s
}

func (d *Draft) hasBuilding(id string) bool {
	for _, b := range d.s.Buildings {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (d *Draft) stairwellBuilding(id string) (string, bool) {
	for _, st := range d.s.Stairwells {
		if st.ID == id {
			return st.BuildingID, true
		}
	}
	return "", false
}

func (d *Draft) filterUnits(keep func(models.Unit) bool) {
	units := d.s.Units[:0]
	for _, u := range d.s.Units {
		if keep(u) {
			units = append(units, u)
		}
	}
	d.s.Units = units
}
