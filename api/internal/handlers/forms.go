package handlers

import (
	"errors"
	"net/http"

	"equipment-inspection-diagnostics-system/api/internal/forms"
	"equipment-inspection-diagnostics-system/shared/httpx"
)

type FormsHandler struct {
	Registry *forms.Registry
}

func (h *FormsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/forms", h.list)
	mux.HandleFunc("GET /api/v1/forms/{type}", h.get)
}

func (h *FormsHandler) list(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"types": h.Registry.Types()})
}

func (h *FormsHandler) get(w http.ResponseWriter, r *http.Request) {
	schema, err := h.Registry.Get(r.PathValue("type"))
	if errors.Is(err, forms.ErrSchemaNotFound) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "form schema not found", nil)
		return
	}
	if err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, schema)
}
