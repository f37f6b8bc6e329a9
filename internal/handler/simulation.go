package handler

import (
	"errors"
	"net/http"

	"github.com/quartzfx/fxsim/internal/domain"
	"github.com/quartzfx/fxsim/internal/engine"
)

// SimulationHandler handles the simulation lifecycle endpoints.
type SimulationHandler struct {
	eng *engine.MarketEngine
}

// NewSimulationHandler creates a new SimulationHandler.
func NewSimulationHandler(eng *engine.MarketEngine) *SimulationHandler {
	return &SimulationHandler{eng: eng}
}

// simulationResponse reports the lifecycle state after a transition.
type simulationResponse struct {
	State string `json:"state"`
}

// Start handles POST /api/simulation/start.
func (h *SimulationHandler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Start(); err != nil {
		mapSimulationError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, simulationResponse{State: string(h.eng.State())})
}

// Stop handles POST /api/simulation/stop.
func (h *SimulationHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.Stop(); err != nil {
		mapSimulationError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, simulationResponse{State: string(h.eng.State())})
}

// Reset handles POST /api/simulation/reset. Reset is idempotent: it stops a
// running simulation and re-seeds the market from the current settings.
func (h *SimulationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.eng.Reset()
	WriteJSON(w, http.StatusOK, simulationResponse{State: string(h.eng.State())})
}

// mapSimulationError maps lifecycle errors to HTTP responses.
func mapSimulationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSimulationRunning):
		WriteError(w, http.StatusConflict, "simulation_already_running", err.Error())
	case errors.Is(err, domain.ErrSimulationNotRunning):
		WriteError(w, http.StatusConflict, "simulation_not_running", err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
