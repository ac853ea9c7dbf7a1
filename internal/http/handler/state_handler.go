package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/your-org/trigger-trader/internal/telemetry"
)

// StateHandler serves the live engine and ledger snapshots, one per traded
// symbol.
type StateHandler struct {
	states func() []telemetry.State
}

// NewStateHandler creates a new StateHandler.
func NewStateHandler(states func() []telemetry.State) *StateHandler {
	return &StateHandler{states: states}
}

// RegisterRoutes registers the state routes on the chi router.
func (h *StateHandler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.GetState)
	r.Get("/state/{symbol}", h.GetSymbolState)
	r.Get("/states", h.GetStates)
}

// GetState writes the first symbol's snapshot.
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	states := h.states()
	if len(states) == 0 {
		http.Error(w, "no symbols running", http.StatusNotFound)
		return
	}
	writeJSON(w, states[0])
}

// GetSymbolState writes the snapshot of the symbol named in the path.
func (h *StateHandler) GetSymbolState(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	for _, s := range h.states() {
		if s.Symbol == symbol {
			writeJSON(w, s)
			return
		}
	}
	http.Error(w, "unknown symbol "+symbol, http.StatusNotFound)
}

// GetStates writes every snapshot as a JSON array.
func (h *StateHandler) GetStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.states())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode state to JSON", http.StatusInternalServerError)
	}
}
