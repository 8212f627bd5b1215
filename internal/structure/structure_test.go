package structure

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mmynk/blocsheet/internal/models"
)

var now = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func testSource() *Source {
	return &Source{
		AssociationID: "asoc-1",
		Buildings:     []models.Building{{ID: "b1", Name: "Bloc A"}},
		Stairwells:    []models.Stairwell{{ID: "s1", Name: "Scara 1", BuildingID: "b1"}},
		Units: []models.Unit{
			{ID: "u1", Number: "1", Persons: 2, BuildingID: "b1", StairwellID: "s1"},
			{ID: "u2", Number: "2", Persons: 1, BuildingID: "b1", StairwellID: "s1"},
		},
	}
}

func TestCapture(t *testing.T) {
	src := testSource()

	s, err := Capture(src, now)
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, s.Version)
	assert.Empty(t, s.ParentID)
	assert.Equal(t, now, s.CreatedAt)
	assert.Len(t, s.Units, 2)

	// Later edits of the live structure must not leak into the version.
	src.Units[0].Persons = 9
	assert.Equal(t, 2, s.Units[0].Persons)
}

func TestCapture_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Source)
	}{
		{"unit in unknown stairwell", func(s *Source) { s.Units[0].StairwellID = "nope" }},
		{"unit building mismatch", func(s *Source) { s.Units[0].BuildingID = "b2" }},
		{"duplicate unit", func(s *Source) { s.Units[1].ID = "u1" }},
		{"stairwell in unknown building", func(s *Source) { s.Stairwells[0].BuildingID = "b9" }},
		{"negative persons", func(s *Source) { s.Units[0].Persons = -1 }},
		{"unit without number", func(s *Source) { s.Units[0].Number = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testSource()
			tt.mutate(src)

			_, err := Capture(src, now)
			assert.ErrorIs(t, err, ErrInvalidStructure)
		})
	}
}

func TestEdit(t *testing.T) {
	base, err := Capture(testSource(), now)
	require.NoError(t, err)
	later := now.Add(time.Hour)

	next, err := Edit(base, later, func(d *Draft) error {
		sID, err := d.AddStairwell(models.Stairwell{Name: "Scara 2", BuildingID: "b1"})
		if err != nil {
			return err
		}
		if _, err := d.AddUnit(models.Unit{Number: "3", Persons: 4, StairwellID: sID}); err != nil {
			return err
		}
		return d.RemoveUnit("u2")
	})
	require.NoError(t, err)

	assert.NotEqual(t, base.ID, next.ID)
	assert.Equal(t, base.ID, next.ParentID)
	assert.Equal(t, 2, next.Version)
	assert.Equal(t, later, next.CreatedAt)
	require.Len(t, next.Units, 2)
	assert.Equal(t, "b1", next.Units[1].BuildingID)

	// The base version is untouched.
	assert.Len(t, base.Stairwells, 1)
	assert.Len(t, base.Units, 2)
	assert.Equal(t, "u2", base.Units[1].ID)
}

func TestEdit_RemoveBuildingCascades(t *testing.T) {
	base, err := Capture(testSource(), now)
	require.NoError(t, err)

	next, err := Edit(base, now, func(d *Draft) error {
		return d.RemoveBuilding("b1")
	})
	require.NoError(t, err)

	assert.Empty(t, next.Buildings)
	assert.Empty(t, next.Stairwells)
	assert.Empty(t, next.Units)
	assert.Len(t, base.Units, 2)
}

func TestEdit_Failures(t *testing.T) {
	base, err := Capture(testSource(), now)
	require.NoError(t, err)

	_, err = Edit(base, now, func(d *Draft) error {
		return d.RemoveUnit("missing")
	})
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = Edit(base, now, func(d *Draft) error {
		_, err := d.AddUnit(models.Unit{Number: "9", StairwellID: "nope"})
		return err
	})
	assert.ErrorIs(t, err, ErrUnknownEntity)

	_, err = Edit(base, now, func(d *Draft) error {
		return d.UpdateBuilding(models.Building{ID: "b1"})
	})
	assert.ErrorIs(t, err, ErrInvalidStructure)
}

const structureYAML = `
association: asoc-1
buildings:
  - id: b1
    name: Bloc A
    stairwells:
      - name: Scara 1
        units:
          - number: "1"
            owner: Popescu Ion
            persons: 2
            surface: 52.5
            type: 2cam
          - number: "2"
            persons: 3
`

func TestParseYAML(t *testing.T) {
	src, err := ParseYAML([]byte(structureYAML))
	require.NoError(t, err)

	require.Len(t, src.Buildings, 1)
	require.Len(t, src.Stairwells, 1)
	require.Len(t, src.Units, 2)
	assert.Equal(t, "b1", src.Stairwells[0].BuildingID)
	assert.Equal(t, "Popescu Ion", src.Units[0].OwnerName)
	assert.Equal(t, 52.5, src.Units[0].Surface)
	assert.Equal(t, src.Stairwells[0].ID, src.Units[1].StairwellID)

	again, err := ParseYAML([]byte(structureYAML))
	require.NoError(t, err)
	assert.Equal(t, src.Units[0].ID, again.Units[0].ID)

	_, err = Capture(src, now)
	assert.NoError(t, err)
}

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "structure.yaml")
	require.NoError(t, os.WriteFile(path, []byte(structureYAML), 0o644))

	src, err := YAMLProvider{Path: path}.Load(context.Background(), "asoc-1")
	require.NoError(t, err)
	assert.Len(t, src.Units, 2)

	_, err = YAMLProvider{Path: path}.Load(context.Background(), "asoc-2")
	assert.ErrorIs(t, err, ErrInvalidStructure)
}

func TestParseRows(t *testing.T) {
	rows := [][]string{
		{"Bloc", "Scara", "Ap", "Proprietar", "Persoane", "Suprafata"},
		{"A", "1", "1", "Ionescu", "2", "48,5"},
		{"A", "1", "2", "", "1"},
		{},
		{"A", "2", "10", "Pop", "4", "70"},
	}

	src, err := ParseRows(rows, "asoc-1")
	require.NoError(t, err)

	assert.Len(t, src.Buildings, 1)
	assert.Len(t, src.Stairwells, 2)
	require.Len(t, src.Units, 3)
	assert.Equal(t, 48.5, src.Units[0].Surface)
	assert.Equal(t, 1, src.Units[1].Persons)
	assert.Equal(t, src.Stairwells[1].ID, src.Units[2].StairwellID)

	_, err = Capture(src, now)
	assert.NoError(t, err)
}

func TestParseRows_Errors(t *testing.T) {
	_, err := ParseRows(nil, "a")
	assert.ErrorIs(t, err, ErrInvalidStructure)

	_, err = ParseRows([][]string{{"Bloc", "Ap"}}, "a")
	assert.ErrorIs(t, err, ErrInvalidStructure)

	_, err = ParseRows([][]string{{"Bloc", "Scara", "Ap", "Persoane"}, {"A", "1", "1", "doi"}}, "a")
	assert.ErrorIs(t, err, ErrInvalidStructure)
}

func TestExcelProvider(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range [][]any{
		{"Building", "Stairwell", "Unit", "Persons"},
		{"Bloc A", "Scara 1", "1", 2},
		{"Bloc A", "Scara 1", "2", 3},
	} {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	path := filepath.Join(t.TempDir(), "structure.xlsx")
	require.NoError(t, f.SaveAs(path))

	src, err := ExcelProvider{Path: path}.Load(context.Background(), "asoc-1")
	require.NoError(t, err)

	assert.Equal(t, "asoc-1", src.AssociationID)
	require.Len(t, src.Units, 2)
	assert.Equal(t, 3, src.Units[1].Persons)
}

func TestFileProvider(t *testing.T) {
	tests := []struct {
		path string
		want Provider
	}{
		{"asociatie.yaml", YAMLProvider{Path: "asociatie.yaml"}},
		{"asociatie.YML", YAMLProvider{Path: "asociatie.YML"}},
		{"apartamente.xlsx", ExcelProvider{Path: "apartamente.xlsx"}},
		{"", NoSource{}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p, err := FileProvider(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p)
		})
	}

	_, err := FileProvider("apartamente.csv")
	assert.Error(t, err)

	_, err = NoSource{}.Load(context.Background(), "asoc-1")
	assert.ErrorIs(t, err, ErrNoSource)
}
