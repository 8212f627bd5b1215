// Package handler exposes the sheet service as JSON over HTTP.
package handler

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmynk/blocsheet/internal/export"
	"github.com/mmynk/blocsheet/internal/metrics"
	"github.com/mmynk/blocsheet/internal/middleware"
	"github.com/mmynk/blocsheet/internal/models"
	"github.com/mmynk/blocsheet/internal/service"
	"github.com/mmynk/blocsheet/internal/structure"
)

// Handler serves the sheet lifecycle endpoints.
type Handler struct {
	svc     *service.SheetService
	metrics *metrics.Metrics
}

// New creates a Handler. m may be nil.
func New(svc *service.SheetService, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, metrics: m}
}

// Routes builds the router with the middleware stack.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)
	r.Use(middleware.Operator)
	r.Use(middleware.Logging)
	r.Use(h.metrics.Middleware)

	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	h.MountRoutes(r)
	return r
}

// MountRoutes registers the API routes on r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/associations/{associationID}/sheets", func(r chi.Router) {
		r.Post("/", h.createSheet)
		r.Get("/", h.listSheets)
		r.Get("/current", h.currentSheet)
		r.Get("/published", h.publishedSheet)
	})
	r.Route("/sheets/{sheetID}", func(r chi.Router) {
		r.Get("/", h.getSheet)
		r.Get("/table", h.table)
		r.Get("/table.xlsx", h.tableXLSX)
		r.Get("/validation", h.validation)
		r.Post("/publish", h.publish)
		r.Put("/config", h.updateConfig)
		r.Put("/initial-balances", h.setInitialBalances)
		r.Post("/structure", h.editStructure)

		r.Post("/expenses", h.addExpense)
		r.Put("/expenses/{expenseID}", h.updateExpense)
		r.Delete("/expenses/{expenseID}", h.removeExpense)
		r.Put("/expenses/{expenseID}/participation/{unitID}", h.setParticipation)

		r.Post("/payments", h.recordPayment)
		r.Get("/units/{unitID}/balance", h.unitBalance)
	})
}

type createSheetRequest struct {
	Period          string                             `json:"period"`
	InitialBalances map[string]models.CarriedBalance   `json:"initial_balances,omitempty"`
	Penalty         *models.PenaltyConfig              `json:"penalty,omitempty"`
	Difference      map[string]models.DifferenceConfig `json:"difference,omitempty"`
	Notes           string                             `json:"notes,omitempty"`
}

func (h *Handler) createSheet(w http.ResponseWriter, r *http.Request) {
	var req createSheetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sheet, err := h.svc.CreateSheet(r.Context(), service.CreateSheetInput{
		AssociationID:   chi.URLParam(r, "associationID"),
		Period:          req.Period,
		InitialBalances: req.InitialBalances,
		Penalty:         req.Penalty,
		Difference:      req.Difference,
		Notes:           req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sheetResponse(sheet))
}

func (h *Handler) listSheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.svc.ListSheets(r.Context(), chi.URLParam(r, "associationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]sheetSummary, 0, len(sheets))
	for _, s := range sheets {
		out = append(out, summarize(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) currentSheet(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.svc.GetCurrentSheet(r.Context(), chi.URLParam(r, "associationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheetResponse(sheet))
}

func (h *Handler) publishedSheet(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.svc.GetPublishedSheet(r.Context(), chi.URLParam(r, "associationID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheetResponse(sheet))
}

func (h *Handler) getSheet(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.svc.GetSheet(r.Context(), chi.URLParam(r, "sheetID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheetResponse(sheet))
}

type tableResponse struct {
	Rows   []models.MaintenanceRow `json:"rows"`
	Totals models.MaintenanceRow   `json:"totals"`
}

func (h *Handler) table(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ComputeMaintenanceTable(r.Context(), chi.URLParam(r, "sheetID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tableResponse{Rows: rows, Totals: totals(rows)})
}

func (h *Handler) tableXLSX(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.svc.GetSheet(r.Context(), chi.URLParam(r, "sheetID"))
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.svc.ComputeMaintenanceTable(r.Context(), sheet.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := export.MaintenanceXLSX(sheet, rows)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "maintenance-"+sheet.Period+".xlsx"))
	_, _ = w.Write(data)
}

func (h *Handler) validation(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CanPublish(r.Context(), chi.URLParam(r, "sheetID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type publishRequest struct {
	Payments []models.Payment     `json:"payments,omitempty"`
	Penalty  *models.PenaltyConfig `json:"penalty,omitempty"`
}

type publishResponse struct {
	PublishedID string `json:"published_id"`
	SuccessorID string `json:"successor_id"`
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	sheetID := chi.URLParam(r, "sheetID")
	successorID, err := h.svc.Publish(r.Context(), sheetID, service.PublishInput{
		Payments:    req.Payments,
		Penalty:     req.Penalty,
		PublishedBy: middleware.GetOperator(r.Context()),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publishResponse{PublishedID: sheetID, SuccessorID: successorID})
}

type configRequest struct {
	Penalty    *service.PenaltyUpdate             `json:"penalty,omitempty"`
	Difference map[string]models.DifferenceConfig `json:"difference,omitempty"`
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg, err := h.svc.UpdateConfig(r.Context(), chi.URLParam(r, "sheetID"), service.ConfigInput{
		Penalty:    req.Penalty,
		Difference: req.Difference,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) setInitialBalances(w http.ResponseWriter, r *http.Request) {
	var balances map[string]models.CarriedBalance
	if err := decodeJSON(r, &balances); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.SetInitialBalances(r.Context(), chi.URLParam(r, "sheetID"), balances); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StructureEdit is one step of a structure edit request. All steps of a
// request produce a single new structure version.
type StructureEdit struct {
	Op        string            `json:"op"`
	ID        string            `json:"id,omitempty"`
	Building  *models.Building  `json:"building,omitempty"`
	Stairwell *models.Stairwell `json:"stairwell,omitempty"`
	Unit      *models.Unit      `json:"unit,omitempty"`
}

func (e StructureEdit) apply(d *structure.Draft) error {
	var err error
	switch e.Op {
	case "add_building":
		if e.Building == nil {
			return fmt.Errorf("%s: building is required", e.Op)
		}
		d.AddBuilding(*e.Building)
	case "update_building":
		if e.Building == nil {
			return fmt.Errorf("%s: building is required", e.Op)
		}
		err = d.UpdateBuilding(*e.Building)
	case "remove_building":
		err = d.RemoveBuilding(e.ID)
	case "add_stairwell":
		if e.Stairwell == nil {
			return fmt.Errorf("%s: stairwell is required", e.Op)
		}
		_, err = d.AddStairwell(*e.Stairwell)
	case "remove_stairwell":
		err = d.RemoveStairwell(e.ID)
	case "add_unit":
		if e.Unit == nil {
			return fmt.Errorf("%s: unit is required", e.Op)
		}
		_, err = d.AddUnit(*e.Unit)
	case "update_unit":
		if e.Unit == nil {
			return fmt.Errorf("%s: unit is required", e.Op)
		}
		err = d.UpdateUnit(*e.Unit)
	case "remove_unit":
		err = d.RemoveUnit(e.ID)
	default:
		return fmt.Errorf("unknown structure edit %q", e.Op)
	}
	return err
}

func (h *Handler) editStructure(w http.ResponseWriter, r *http.Request) {
	var edits []StructureEdit
	if err := decodeJSON(r, &edits); err != nil {
		writeError(w, err)
		return
	}
	st, err := h.svc.EditStructure(r.Context(), chi.URLParam(r, "sheetID"), func(d *structure.Draft) error {
		for _, e := range edits {
			if err := e.apply(d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) addExpense(w http.ResponseWriter, r *http.Request) {
	var e models.Expense
	if err := decodeJSON(r, &e); err != nil {
		writeError(w, err)
		return
	}
	added, err := h.svc.AddExpense(r.Context(), chi.URLParam(r, "sheetID"), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	var e models.Expense
	if err := decodeJSON(r, &e); err != nil {
		writeError(w, err)
		return
	}
	e.ID = chi.URLParam(r, "expenseID")
	updated, err := h.svc.UpdateExpense(r.Context(), chi.URLParam(r, "sheetID"), e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) removeExpense(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveExpense(r.Context(), chi.URLParam(r, "sheetID"), chi.URLParam(r, "expenseID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type participationResponse struct {
	Previous *models.Participation `json:"previous"`
}

func (h *Handler) setParticipation(w http.ResponseWriter, r *http.Request) {
	var p models.Participation
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	previous, err := h.svc.SetParticipation(r.Context(),
		chi.URLParam(r, "sheetID"),
		chi.URLParam(r, "expenseID"),
		chi.URLParam(r, "unitID"),
		&p,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participationResponse{Previous: previous})
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var p models.Payment
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, err)
		return
	}
	if p.RecordedBy == "" {
		p.RecordedBy = middleware.GetOperator(r.Context())
	}
	recorded, err := h.svc.RecordPayment(r.Context(), chi.URLParam(r, "sheetID"), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, recorded)
}

func (h *Handler) unitBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.svc.ComputeUnitBalance(r.Context(), chi.URLParam(r, "sheetID"), chi.URLParam(r, "unitID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
