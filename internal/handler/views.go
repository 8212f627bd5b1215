package handler

import (
	"time"

	"github.com/mmynk/blocsheet/internal/calculator"
	"github.com/mmynk/blocsheet/internal/models"
)

// sheetView adds the resolved structure, which a stored sheet omits.
type sheetView struct {
	*models.Sheet
	Structure *models.Structure `json:"structure,omitempty"`
}

func sheetResponse(s *models.Sheet) sheetView {
	return sheetView{Sheet: s, Structure: s.Structure}
}

type sheetSummary struct {
	ID           string             `json:"id"`
	Period       string             `json:"period"`
	Status       models.SheetStatus `json:"status"`
	StructureID  string             `json:"structure_id"`
	SnapshotHash string             `json:"snapshot_hash,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	PublishedAt  *time.Time         `json:"published_at,omitempty"`
	ArchivedAt   *time.Time         `json:"archived_at,omitempty"`
}

func summarize(s *models.Sheet) sheetSummary {
	return sheetSummary{
		ID:           s.ID,
		Period:       s.Period,
		Status:       s.Status,
		StructureID:  s.StructureID,
		SnapshotHash: s.SnapshotHash,
		CreatedAt:    s.CreatedAt,
		PublishedAt:  s.PublishedAt,
		ArchivedAt:   s.ArchivedAt,
	}
}

func totals(rows []models.MaintenanceRow) models.MaintenanceRow {
	return calculator.Totals(rows)
}
