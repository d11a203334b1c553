package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/api/shared"
	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/pipeline"
	"github.com/currents-app/currents/internal/store"
)

// ProcessItemRequest represents the request body for triggering item
// processing. FromStage, when set, rewinds the item to that stage before
// re-processing.
type ProcessItemRequest struct {
	FromStage string `json:"from_stage" validate:"omitempty,oneof=normalize embed crossref"`
	Force     bool   `json:"force"`
}

// StageResponse represents one stage flag on an item
type StageResponse struct {
	State       string     `json:"state"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Count       int        `json:"count,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// ItemResponse represents the response data for a content item
type ItemResponse struct {
	ID        string                   `json:"id"`
	SourceID  string                   `json:"source_id"`
	URL       string                   `json:"url"`
	Title     string                   `json:"title"`
	Stages    map[string]StageResponse `json:"stages"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// ItemHandler handles item-related HTTP requests
type ItemHandler struct {
	items     store.ItemStore
	pipeline  *pipeline.Pipeline
	validator *validator.Validate
}

// NewItemHandler creates a new ItemHandler
func NewItemHandler(items store.ItemStore, p *pipeline.Pipeline) *ItemHandler {
	return &ItemHandler{
		items:     items,
		pipeline:  p,
		validator: validator.New(),
	}
}

// GetItem handles GET /api/items/{id} requests
func (h *ItemHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	item, err := h.items.GetItem(r.Context(), itemID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, itemToDTOResponse(item))
}

// ProcessItem handles POST /api/items/{id}/process requests. An empty
// body schedules the item's first stage; a from_stage rewinds the item
// and re-runs from there. Processing happens asynchronously, so the
// response is 202 Accepted.
func (h *ItemHandler) ProcessItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	// Parse request body; an absent body means default options
	var req ProcessItemRequest
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	var err error
	if req.FromStage != "" {
		err = h.pipeline.ReprocessItem(r.Context(), itemID, domain.Stage(req.FromStage))
	} else {
		err = h.pipeline.EnqueueItem(r.Context(), itemID, pipeline.TriggerOptions{ForceImmediate: req.Force})
	}
	if err != nil {
		slog.Error("Failed to trigger item processing", "error", err, "item_id", itemID)
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, map[string]string{
		"status": "scheduled",
	})
}

// parseIDParam extracts and parses the {id} URL parameter, responding
// with 400 on malformed input.
func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid ID format")
		return uuid.Nil, false
	}
	return id, true
}

// itemToDTOResponse converts a domain.ContentItem to an ItemResponse
func itemToDTOResponse(item *domain.ContentItem) ItemResponse {
	stages := make(map[string]StageResponse, len(item.Stages))
	for stage, result := range item.Stages {
		stages[string(stage)] = StageResponse{
			State:       string(result.State),
			CompletedAt: result.CompletedAt,
			Count:       result.Count,
			Reason:      result.Reason,
		}
	}
	return ItemResponse{
		ID:        item.ID.String(),
		SourceID:  item.SourceID.String(),
		URL:       item.URL,
		Title:     item.Title,
		Stages:    stages,
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}
