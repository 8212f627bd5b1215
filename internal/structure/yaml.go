package structure

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mmynk/blocsheet/internal/models"
)

type yamlFile struct {
	Association string         `yaml:"association"`
	Buildings   []yamlBuilding `yaml:"buildings"`
}

type yamlBuilding struct {
	ID         string          `yaml:"id"`
	Name       string          `yaml:"name"`
	Stairwells []yamlStairwell `yaml:"stairwells"`
}

type yamlStairwell struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Units []yamlUnit `yaml:"units"`
}

type yamlUnit struct {
	ID      string  `yaml:"id"`
	Number  string  `yaml:"number"`
	Owner   string  `yaml:"owner"`
	Persons int     `yaml:"persons"`
	Surface float64 `yaml:"surface"`
	Type    string  `yaml:"type"`
}

// ParseYAML reads a nested buildings/stairwells/units document. Missing ids
// are derived from the association and the entity names so re-importing the
// same file yields the same ids.
func ParseYAML(data []byte) (*Source, error) {
	var f yamlFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse structure yaml: %w", err)
	}

	src := &Source{AssociationID: f.Association}
	for _, b := range f.Buildings {
		bID := orDerived(b.ID, f.Association, b.Name)
		src.Buildings = append(src.Buildings, models.Building{ID: bID, Name: b.Name})
		for _, st := range b.Stairwells {
			sID := orDerived(st.ID, f.Association, b.Name, st.Name)
			src.Stairwells = append(src.Stairwells, models.Stairwell{ID: sID, Name: st.Name, BuildingID: bID})
			for _, u := range st.Units {
				src.Units = append(src.Units, models.Unit{
					ID:            orDerived(u.ID, f.Association, b.Name, st.Name, u.Number),
					Number:        u.Number,
					OwnerName:     u.Owner,
					Persons:       u.Persons,
					Surface:       u.Surface,
					BuildingID:    bID,
					StairwellID:   sID,
					ApartmentType: u.Type,
				})
			}
		}
	}
	return src, nil
}

// YAMLProvider loads an association structure from a YAML file.
type YAMLProvider struct {
	Path string
}

// Load implements Provider.
func (p YAMLProvider) Load(_ context.Context, associationID string) (*Source, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read structure file: %w", err)
	}
	src, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return bind(src, associationID)
}

func bind(src *Source, associationID string) (*Source, error) {
	if src.AssociationID != "" && src.AssociationID != associationID {
		return nil, fmt.Errorf("%w: file describes association %q, not %q", ErrInvalidStructure, src.AssociationID, associationID)
	}
	src.AssociationID = associationID
	return src, nil
}
