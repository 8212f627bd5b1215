package calculator

import "github.com/mmynk/blocsheet/internal/models"

func testStructure() *models.Structure {
	return &models.Structure{
		ID:      "struct-1",
		Version: 1,
		Buildings: []models.Building{
			{ID: "b1", Name: "Bloc A"},
			{ID: "b2", Name: "Bloc B"},
		},
		Stairwells: []models.Stairwell{
			{ID: "s1", Name: "Scara 1", BuildingID: "b1"},
			{ID: "s2", Name: "Scara 2", BuildingID: "b1"},
			{ID: "s3", Name: "Scara 1", BuildingID: "b2"},
		},
		Units: []models.Unit{
			{ID: "u1", Number: "1", Persons: 2, Surface: 50, BuildingID: "b1", StairwellID: "s1"},
			{ID: "u2", Number: "2", Persons: 3, Surface: 70, BuildingID: "b1", StairwellID: "s1"},
			{ID: "u3", Number: "10", Persons: 1, Surface: 40, BuildingID: "b1", StairwellID: "s2"},
			{ID: "u4", Number: "3", Persons: 4, Surface: 90, BuildingID: "b2", StairwellID: "s3"},
		},
	}
}

func twoUnits() []models.Unit {
	return []models.Unit{
		{ID: "A", Number: "1", Persons: 1, Surface: 40},
		{ID: "B", Number: "2", Persons: 3, Surface: 60},
	}
}

func sumShares(shares map[string]float64) float64 {
	var total float64
	for _, v := range shares {
		total += v
	}
	return total
}
