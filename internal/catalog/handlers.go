package catalog

import (
	"net/http"

	"github.com/noah-isme/cart-engine/internal/common"
)

// Handler exposes the registered model names.
type Handler struct {
	registry *Registry
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Registry *Registry
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{registry: cfg.Registry}
}

// Models handles GET /api/v1/models.
func (h *Handler) Models(w http.ResponseWriter, _ *http.Request) {
	if h.registry == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "model registry not configured", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.registry.Names()})
}
