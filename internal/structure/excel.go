package structure

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/mmynk/blocsheet/internal/models"
)

// Column headers recognised in a structure workbook, case-insensitive.
var excelColumns = map[string]string{
	"bloc":       "building",
	"building":   "building",
	"scara":      "stairwell",
	"stairwell":  "stairwell",
	"apartament": "number",
	"ap":         "number",
	"unit":       "number",
	"proprietar": "owner",
	"owner":      "owner",
	"persoane":   "persons",
	"persons":    "persons",
	"suprafata":  "surface",
	"surface":    "surface",
	"tip":        "type",
	"type":       "type",
}

// ExcelProvider loads an association structure from the first sheet of an
// XLSX workbook with one unit per row.
type ExcelProvider struct {
	Path string
}

// Load implements Provider.
func (p ExcelProvider) Load(_ context.Context, associationID string) (*Source, error) {
	f, err := excelize.OpenFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open structure workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, associationID)
}

// ReadExcel parses a workbook from r, e.g. an uploaded file.
func ReadExcel(r io.Reader, associationID string) (*Source, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open structure workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(f, associationID)
}

func readWorkbook(f *excelize.File, associationID string) (*Source, error) {
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("failed to read structure rows: %w", err)
	}
	return ParseRows(rows, associationID)
}

// ParseRows builds a Source from a header row followed by one row per unit.
// Building and stairwell ids are derived from their names.
func ParseRows(rows [][]string, associationID string) (*Source, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty workbook", ErrInvalidStructure)
	}
	cols := make(map[string]int)
	for i, h := range rows[0] {
		if key, ok := excelColumns[strings.ToLower(strings.TrimSpace(h))]; ok {
			cols[key] = i
		}
	}
	for _, required := range []string{"building", "stairwell", "number"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: missing %s column", ErrInvalidStructure, required)
		}
	}

	src := &Source{AssociationID: associationID}
	seenB := make(map[string]bool)
	seenS := make(map[string]bool)
	for n, row := range rows[1:] {
		cell := func(key string) string {
			i, ok := cols[key]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		building, stairwell, number := cell("building"), cell("stairwell"), cell("number")
		if building == "" && stairwell == "" && number == "" {
			continue
		}

		bID := derivedID(associationID, building)
		if !seenB[bID] {
			seenB[bID] = true
			src.Buildings = append(src.Buildings, models.Building{ID: bID, Name: building})
		}
		sID := derivedID(associationID, building, stairwell)
		if !seenS[sID] {
			seenS[sID] = true
			src.Stairwells = append(src.Stairwells, models.Stairwell{ID: sID, Name: stairwell, BuildingID: bID})
		}

		u := models.Unit{
			ID:            derivedID(associationID, building, stairwell, number),
			Number:        number,
			OwnerName:     cell("owner"),
			BuildingID:    bID,
			StairwellID:   sID,
			ApartmentType: cell("type"),
		}
		if v := cell("persons"); v != "" {
			p, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: persons %q", ErrInvalidStructure, n+2, v)
			}
			u.Persons = p
		}
		if v := cell("surface"); v != "" {
			s, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: surface %q", ErrInvalidStructure, n+2, v)
			}
			u.Surface = s
		}
		src.Units = append(src.Units, u)
	}
	return src, nil
}

var idNamespace = uuid.MustParse("6f1c2a8e-4d0b-5e7a-9c3f-2b8d1e4a7c60")

func derivedID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "/"))).String()
}

func orDerived(id string, parts ...string) string {
	if id != "" {
		return id
	}
	return derivedID(parts...)
}
