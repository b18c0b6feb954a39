package cart

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/noah-isme/cart-engine/internal/common"
	"github.com/noah-isme/cart-engine/internal/pricing"
)

var errVetoed = common.NewAppError("VETOED", "operation cancelled by a cart listener", http.StatusConflict, nil)

// Handler exposes cart operations over HTTP.
type Handler struct {
	factory *Factory
	logger  zerolog.Logger
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Factory *Factory
	Logger  *zerolog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Handler{factory: cfg.Factory, logger: logger}
}

// Routes returns the cart router, meant to be mounted under /api/v1/carts.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.Create)
	r.Route("/{id}", func(c chi.Router) {
		c.Get("/", h.Get)

		c.Post("/items", h.AddItems)
		c.Delete("/items", h.Clear)
		c.Patch("/items/{itemId}", h.UpdateItem)
		c.Delete("/items/{itemId}", h.RemoveItem)
		c.Post("/items/{itemId}/associate", h.Associate)
		c.Get("/items/{itemId}/model", h.Model)
		c.Post("/items/{itemId}/conditions", h.AddItemCondition)
		c.Delete("/items/{itemId}/conditions", h.ClearItemConditions)
		c.Delete("/items/{itemId}/conditions/{name}", h.RemoveItemCondition)

		c.Get("/conditions", h.ListConditions)
		c.Post("/conditions", h.AddConditions)
		c.Delete("/conditions", h.ClearConditions)
		c.Delete("/conditions/all", h.ClearAllConditions)
		c.Delete("/conditions/{name}", h.RemoveCondition)
		c.Get("/conditions/{name}/value", h.ConditionValue)
	})
	return r
}

// Create handles POST /carts and returns a fresh session key.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.factory == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart factory not configured", nil)
		return
	}
	var payload struct {
		SessionKey string `json:"sessionKey"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	key := strings.TrimSpace(payload.SessionKey)
	if key == "" {
		key = NewSessionKey()
	}
	c, err := h.factory.Open(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"sessionKey": c.SessionKey(),
			"instance":   c.InstanceName(),
		},
	})
}

// Get handles GET /carts/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	h.writeSnapshot(w, r, c, http.StatusOK)
}

// AddItems handles POST /carts/{id}/items with a single descriptor or a list.
func (h *Handler) AddItems(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	batches, err := decodeItemBatches(body)
	if err != nil {
		h.writeError(w, common.NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, err))
		return
	}
	ids, err := c.AddAll(r.Context(), batches...)
	if err != nil {
		h.writeError(w, err)
		return
	}
	requested := 0
	for _, batch := range batches {
		requested += len(batch)
	}
	if len(ids) == 0 && requested > 0 {
		h.writeError(w, errVetoed)
		return
	}
	h.writeSnapshot(w, r, c, http.StatusCreated)
}

// UpdateItem handles PATCH /carts/{id}/items/{itemId}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	var upd ItemUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	applied, err := c.Update(r.Context(), chi.URLParam(r, "itemId"), upd)
	h.finish(w, r, c, applied, err)
}

// RemoveItem handles DELETE /carts/{id}/items/{itemId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	applied, err := c.Remove(r.Context(), chi.URLParam(r, "itemId"))
	h.finish(w, r, c, applied, err)
}

// Clear handles DELETE /carts/{id}/items.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	applied, err := c.Clear(r.Context())
	h.finish(w, r, c, applied, err)
}

// Associate handles POST /carts/{id}/items/{itemId}/associate.
func (h *Handler) Associate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	var payload struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	err := c.Associate(r.Context(), chi.URLParam(r, "itemId"), payload.Model)
	h.finish(w, r, c, true, err)
}

// Model handles GET /carts/{id}/items/{itemId}/model.
func (h *Handler) Model(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	model, err := c.Model(r.Context(), chi.URLParam(r, "itemId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": model})
}

// AddItemCondition handles POST /carts/{id}/items/{itemId}/conditions.
func (h *Handler) AddItemCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	conds, err := decodeConditions(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	itemID := chi.URLParam(r, "itemId")
	applied := true
	for _, cond := range conds {
		ok, err := c.AddItemCondition(r.Context(), itemID, cond)
		if err != nil {
			h.writeError(w, err)
			return
		}
		applied = applied && ok
	}
	h.finish(w, r, c, applied, nil)
}

// RemoveItemCondition handles DELETE /carts/{id}/items/{itemId}/conditions/{name}.
func (h *Handler) RemoveItemCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	applied, err := c.RemoveItemCondition(r.Context(), chi.URLParam(r, "itemId"), chi.URLParam(r, "name"))
	h.finish(w, r, c, applied, err)
}

// ClearItemConditions handles DELETE /carts/{id}/items/{itemId}/conditions.
func (h *Handler) ClearItemConditions(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	applied, err := c.ClearItemConditions(r.Context(), chi.URLParam(r, "itemId"))
	h.finish(w, r, c, applied, err)
}

// ListConditions handles GET /carts/{id}/conditions. Supports ?active=true and ?type=.
func (h *Handler) ListConditions(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	var (
		set *pricing.Conditions
		err error
	)
	if kind := strings.TrimSpace(query.Get("type")); kind != "" {
		set, err = c.ConditionsByType(r.Context(), kind)
	} else {
		set, err = c.Conditions(r.Context(), cast.ToBool(query.Get("active")))
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": set})
}

// AddConditions handles POST /carts/{id}/conditions with one condition or a list.
func (h *Handler) AddConditions(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	conds, err := decodeConditions(r.Body)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := c.Condition(r.Context(), conds...); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSnapshot(w, r, c, http.StatusCreated)
}

// RemoveCondition handles DELETE /carts/{id}/conditions/{name}.
func (h *Handler) RemoveCondition(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	err := c.RemoveCartCondition(r.Context(), chi.URLParam(r, "name"))
	h.finish(w, r, c, true, err)
}

// ClearConditions handles DELETE /carts/{id}/conditions. With ?type= only that type
// is removed; item conditions are never touched.
func (h *Handler) ClearConditions(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	var err error
	if kind := strings.TrimSpace(r.URL.Query().Get("type")); kind != "" {
		err = c.RemoveConditionsByType(r.Context(), kind)
	} else {
		err = c.ClearCartConditions(r.Context())
	}
	h.finish(w, r, c, true, err)
}

// ClearAllConditions handles DELETE /carts/{id}/conditions/all.
func (h *Handler) ClearAllConditions(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	err := c.ClearAllConditions(r.Context())
	h.finish(w, r, c, true, err)
}

// ConditionValue handles GET /carts/{id}/conditions/{name}/value.
func (h *Handler) ConditionValue(w http.ResponseWriter, r *http.Request) {
	c, ok := h.open(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	value, err := c.CalculatedValueForCondition(r.Context(), name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"name": name, "value": value},
	})
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) (*Cart, bool) {
	if h.factory == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart factory not configured", nil)
		return nil, false
	}
	c, err := h.factory.Open(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) finish(w http.ResponseWriter, r *http.Request, c *Cart, applied bool, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !applied {
		h.writeError(w, errVetoed)
		return
	}
	h.writeSnapshot(w, r, c, http.StatusOK)
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, r *http.Request, c *Cart, status int) {
	snap, err := c.Snapshot(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, status, map[string]any{"data": snap})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	if common.WriteAppError(w, err) {
		return
	}
	switch {
	case errors.Is(err, ErrInvalidItem), errors.Is(err, pricing.ErrInvalidCondition), errors.Is(err, ErrUnknownModel):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrSessionKeyRequired):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		h.logger.Error().Err(err).Msg("cart request failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func decodeConditions(body io.Reader) ([]*pricing.Condition, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, common.NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, err)
	}
	var bags []map[string]any
	if isJSONList(data) {
		err = json.Unmarshal(data, &bags)
	} else {
		var bag map[string]any
		err = json.Unmarshal(data, &bag)
		bags = []map[string]any{bag}
	}
	if err != nil {
		return nil, common.NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, err)
	}
	out := make([]*pricing.Condition, 0, len(bags))
	for _, bag := range bags {
		cond, err := pricing.NewConditionFromMap(bag)
		if err != nil {
			return nil, err
		}
		out = append(out, cond)
	}
	return out, nil
}

// decodeItemBatches accepts a descriptor, a list of descriptors, or a list mixing
// descriptors and nested lists. Consecutive descriptors share a batch; each nested
// list is its own batch, so the original order is kept.
func decodeItemBatches(body []byte) ([][]ItemInput, error) {
	if !isJSONList(body) {
		var single ItemInput
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, err
		}
		return [][]ItemInput{{single}}, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, err
	}
	batches := make([][]ItemInput, 0, 1)
	var flat []ItemInput
	for _, elem := range elems {
		if !isJSONList(elem) {
			var single ItemInput
			if err := json.Unmarshal(elem, &single); err != nil {
				return nil, err
			}
			flat = append(flat, single)
			continue
		}
		if len(flat) > 0 {
			batches = append(batches, flat)
			flat = nil
		}
		var nested []ItemInput
		if err := json.Unmarshal(elem, &nested); err != nil {
			return nil, err
		}
		batches = append(batches, nested)
	}
	if len(flat) > 0 {
		batches = append(batches, flat)
	}
	return batches, nil
}

func isJSONList(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '['
}
