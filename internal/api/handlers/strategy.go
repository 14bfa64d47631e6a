package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/strategy"
)

type StrategyHandler struct {
	registry *strategy.Registry
}

func NewStrategyHandler(registry *strategy.Registry) *StrategyHandler {
	return &StrategyHandler{registry: registry}
}

type strategyResponse struct {
	Name      string           `json:"name"`
	Fields    []string         `json:"fields"`
	ProbeType domain.ProbeType `json:"probe_type"`
}

// List returns every registered strategy, or those applicable to ?field=.
func (h *StrategyHandler) List(w http.ResponseWriter, r *http.Request) {
	var templates []strategy.Template
	if field := r.URL.Query().Get("field"); field != "" {
		templates = h.registry.StrategiesForField(field)
	} else {
		templates = h.registry.All()
	}

	out := make([]strategyResponse, 0, len(templates))
	for _, t := range templates {
		out = append(out, strategyResponse{
			Name:      t.Name(),
			Fields:    t.ApplicableFields(),
			ProbeType: t.ProbeType(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": out, "count": len(out)})
}
