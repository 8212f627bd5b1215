package models

import "time"

// Structure is an immutable version of an association's organizational tree.
// Edits never modify a Structure in place; they produce a new version whose
// ParentID points at the version it was derived from.
type Structure struct {
	// ID is the unique identifier of this version (UUID format).
	ID string

	AssociationID string

	// Version starts at 1 and increases by one per edit.
	Version int

	// ParentID is the version this one was derived from, empty for a capture.
	ParentID string

	Buildings  []Building
	Stairwells []Stairwell
	Units      []Unit

	CreatedAt time.Time
}

// Building is a block of flats.
type Building struct {
	ID   string `validate:"required"`
	Name string `validate:"required"`
}

// Stairwell is an entrance within a building.
type Stairwell struct {
	ID         string `validate:"required"`
	Name       string `validate:"required"`
	BuildingID string `validate:"required"`
}

// Unit is a billable apartment as captured in a structure version.
type Unit struct {
	ID          string `validate:"required"`
	Number      string `validate:"required"`
	OwnerName   string
	Persons     int     `validate:"gte=0"`
	Surface     float64 `validate:"gte=0"`
	BuildingID  string  `validate:"required"`
	StairwellID string  `validate:"required"`

	// ApartmentType is a free label ("garsoniera", "2 camere") used by the
	// per-type difference adjustment.
	ApartmentType string
}

// Unit returns the unit with the given id.
func (s *Structure) Unit(id string) (Unit, bool) {
	if s == nil {
		return Unit{}, false
	}
	for _, u := range s.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// BuildingName returns the display name of a building, or "" if unknown.
func (s *Structure) BuildingName(id string) string {
	if s == nil {
		return ""
	}
	for _, b := range s.Buildings {
		if b.ID == id {
			return b.Name
		}
	}
	return ""
}

// StairwellName returns the display name of a stairwell, or "" if unknown.
func (s *Structure) StairwellName(id string) string {
	if s == nil {
		return ""
	}
	for _, st := range s.Stairwells {
		if st.ID == id {
			return st.Name
		}
	}
	return ""
}
