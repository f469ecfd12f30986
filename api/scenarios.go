/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Exposes the YAML scenarios embedded in the factory package. Loading a
  scenario creates its reference data, cases, appropriations, activities and
  schedules through core.Service, grants what the scenario grants and marks
  the early payments paid.

AVAILABLE SCENARIOS:
  running-payment:  One granted main activity with a monthly cash payment
  modification:     Open-ended foster care with an expected raise
  supplementary:    Hourly main activity with rate-priced transport

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "modification"}

NOTE:
  Scenarios never reset the store. Every load creates fresh records, so a
  scenario can be loaded repeatedly next to real data.

SEE ALSO:
  - factory/scenario.go: YAML schema and Apply
  - factory/scenarios/: the scenario files
*/
package api

import (
	"net/http"
	"sort"

	"github.com/warp/appropriation-engine/factory"
)

// LoadScenarioResponse lists the cases a scenario created.
type LoadScenarioResponse struct {
	Status         string            `json:"status"`
	ScenarioID     string            `json:"scenario_id"`
	Cases          map[string]string `json:"cases"`
	Activities     map[string]string `json:"activities"`
	PaymentsMarked int               `json:"payments_marked_paid"`
}

// ListScenarios returns the built-in scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	all, err := factory.Builtin()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ScenarioDTO, 0, len(all))
	for _, s := range all {
		dtos = append(dtos, ScenarioDTO{ID: s.ID, Name: s.Name, Description: s.Description})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].ID < dtos[j].ID })
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario applies a built-in scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, err := factory.FindBuiltin(req.ScenarioID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := s.Apply(r.Context(), h.Service)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := LoadScenarioResponse{
		Status:         "loaded",
		ScenarioID:     s.ID,
		Cases:          make(map[string]string, len(res.Cases)),
		Activities:     make(map[string]string, len(res.Activities)),
		PaymentsMarked: res.PaymentsMarked,
	}
	for key, id := range res.Cases {
		resp.Cases[key] = string(id)
	}
	for key, id := range res.Activities {
		resp.Activities[key] = string(id)
	}
	LoggerFrom(r.Context()).Info("scenario loaded", "scenario", s.ID, "cases", len(res.Cases))
	writeJSON(w, http.StatusCreated, resp)
}
