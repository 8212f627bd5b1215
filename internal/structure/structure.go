// Package structure captures and versions the organizational tree
// (buildings, stairwells, units) of an association.
//
// A sheet never reads the live structure. It references an immutable
// models.Structure version produced by Capture; later edits go through Edit
// and yield a new version, so published sheets keep the structure they were
// computed with.
package structure

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mmynk/blocsheet/internal/models"
)

var (
	// ErrInvalidStructure is returned when a structure fails integrity checks.
	ErrInvalidStructure = errors.New("invalid structure")
	// ErrUnknownEntity is returned when an edit references a missing id.
	ErrUnknownEntity = errors.New("unknown structure entity")
)

var validate = validator.New()

// Source is the live structure of an association as loaded by a Provider.
type Source struct {
	AssociationID string
	Buildings     []models.Building
	Stairwells    []models.Stairwell
	Units         []models.Unit
}

// Provider loads the current live structure of an association.
type Provider interface {
	Load(ctx context.Context, associationID string) (*Source, error)
}

// ErrNoSource is returned by a NoSource provider.
var ErrNoSource = errors.New("no structure source configured")

// FileProvider returns the provider matching the extension of path:
// YAML for .yaml and .yml, Excel for .xlsx. An empty path yields NoSource.
func FileProvider(path string) (Provider, error) {
	if path == "" {
		return NoSource{}, nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAMLProvider{Path: path}, nil
	case ".xlsx":
		return ExcelProvider{Path: path}, nil
	}
	return nil, fmt.Errorf("unsupported structure file %q", path)
}

// NoSource is a Provider for deployments without a structure source.
type NoSource struct{}

// Load always fails with ErrNoSource.
func (NoSource) Load(context.Context, string) (*Source, error) {
	return nil, ErrNoSource
}

// Capture freezes a live structure into version 1 of a new structure line.
// The source is deep-copied; later changes to it do not affect the result.
func Capture(src *Source, now time.Time) (*models.Structure, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: no source", ErrInvalidStructure)
	}
	s := &models.Structure{
		ID:            uuid.New().String(),
		AssociationID: src.AssociationID,
		Version:       1,
		Buildings:     append([]models.Building(nil), src.Buildings...),
		Stairwells:    append([]models.Stairwell(nil), src.Stairwells...),
		Units:         append([]models.Unit(nil), src.Units...),
		CreatedAt:     now,
	}
	if err := Check(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Clone returns a deep copy of s.
func Clone(s *models.Structure) *models.Structure {
	if s == nil {
		return nil
	}
	c := *s
	c.Buildings = append([]models.Building(nil), s.Buildings...)
	c.Stairwells = append([]models.Stairwell(nil), s.Stairwells...)
	c.Units = append([]models.Unit(nil), s.Units...)
	return &c
}

// Check verifies field constraints and that every stairwell and unit points
// at an existing parent.
func Check(s *models.Structure) error {
	buildings := make(map[string]bool, len(s.Buildings))
	for _, b := range s.Buildings {
		if err := validate.Struct(b); err != nil {
			return fmt.Errorf("%w: building %q: %v", ErrInvalidStructure, b.ID, err)
		}
		if buildings[b.ID] {
			return fmt.Errorf("%w: duplicate building %q", ErrInvalidStructure, b.ID)
		}
		buildings[b.ID] = true
	}

	stairwells := make(map[string]string, len(s.Stairwells))
	for _, st := range s.Stairwells {
		if err := validate.Struct(st); err != nil {
			return fmt.Errorf("%w: stairwell %q: %v", ErrInvalidStructure, st.ID, err)
		}
		if _, dup := stairwells[st.ID]; dup {
			return fmt.Errorf("%w: duplicate stairwell %q", ErrInvalidStructure, st.ID)
		}
		if !buildings[st.BuildingID] {
			return fmt.Errorf("%w: stairwell %q references unknown building %q", ErrInvalidStructure, st.ID, st.BuildingID)
		}
		stairwells[st.ID] = st.BuildingID
	}

	units := make(map[string]bool, len(s.Units))
	for _, u := range s.Units {
		if err := validate.Struct(u); err != nil {
			return fmt.Errorf("%w: unit %q: %v", ErrInvalidStructure, u.ID, err)
		}
		if units[u.ID] {
			return fmt.Errorf("%w: duplicate unit %q", ErrInvalidStructure, u.ID)
		}
		units[u.ID] = true
		building, ok := stairwells[u.StairwellID]
		if !ok {
			return fmt.Errorf("%w: unit %q references unknown stairwell %q", ErrInvalidStructure, u.ID, u.StairwellID)
		}
		if building != u.BuildingID {
			return fmt.Errorf("%w: unit %q is in stairwell %q which is not in building %q", ErrInvalidStructure, u.ID, u.StairwellID, u.BuildingID)
		}
	}
	return nil
}
