package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zixuanli/edge-sim/backend/internal/model/persona"
	"github.com/zixuanli/edge-sim/backend/pkg/utils"
)

// Handler exposes the fixed persona catalogue.
type Handler struct {
	store persona.Store
}

// New creates a persona handler.
func New(store persona.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers persona routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.List())
}
