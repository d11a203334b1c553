package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/currents-app/currents/internal/api/shared"
	"github.com/currents-app/currents/internal/domain"
	"github.com/currents-app/currents/internal/pipeline"
	"github.com/currents-app/currents/internal/store"
)

// CreateSourceRequest represents the request body for subscribing to a feed
type CreateSourceRequest struct {
	OwnerID             string `json:"owner_id" validate:"required,uuid"`
	FeedURL             string `json:"feed_url" validate:"required,url"`
	PollIntervalSeconds int    `json:"poll_interval_seconds" validate:"required,gt=0"`
}

// SourceResponse represents the response data for a source
type SourceResponse struct {
	ID                  string     `json:"id"`
	OwnerID             string     `json:"owner_id"`
	FeedURL             string     `json:"feed_url"`
	PollIntervalSeconds int        `json:"poll_interval_seconds"`
	LastPolledAt        *time.Time `json:"last_polled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SourceHandler handles source-related HTTP requests
type SourceHandler struct {
	sources   store.SourceStore
	pipeline  *pipeline.Pipeline
	validator *validator.Validate
}

// NewSourceHandler creates a new SourceHandler
func NewSourceHandler(sources store.SourceStore, p *pipeline.Pipeline) *SourceHandler {
	return &SourceHandler{
		sources:   sources,
		pipeline:  p,
		validator: validator.New(),
	}
}

// CreateSource handles POST /api/sources requests. The new source is
// polled for the first time by the next due-source scan, so the response
// is 201 Created without waiting for feed content.
func (h *SourceHandler) CreateSource(w http.ResponseWriter, r *http.Request) {
	// Parse request body
	var req CreateSourceRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	// Validate request
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	ownerID, err := uuid.Parse(req.OwnerID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid owner ID format")
		return
	}

	source, err := domain.NewSource(ownerID, req.FeedURL, req.PollIntervalSeconds)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	if err := h.sources.CreateSource(r.Context(), source); err != nil {
		slog.Error("Failed to create source", "error", err, "feed_url", req.FeedURL)
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, sourceToDTOResponse(source))
}

// GetSource handles GET /api/sources/{id} requests
func (h *SourceHandler) GetSource(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	source, err := h.sources.GetSource(r.Context(), sourceID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, sourceToDTOResponse(source))
}

// PollSource handles POST /api/sources/{id}/poll requests. It schedules
// an immediate poll ahead of the source's regular cadence.
func (h *SourceHandler) PollSource(w http.ResponseWriter, r *http.Request) {
	sourceID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	// Reject polls for unknown sources up front; the enqueued job would
	// otherwise silently drop.
	if _, err := h.sources.GetSource(r.Context(), sourceID); err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	err := h.pipeline.EnqueueSourcePoll(r.Context(), sourceID, pipeline.TriggerOptions{ForceImmediate: true})
	if err != nil {
		slog.Error("Failed to trigger source poll", "error", err, "source_id", sourceID)
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, map[string]string{
		"status": "scheduled",
	})
}

// sourceToDTOResponse converts a domain.Source to a SourceResponse
func sourceToDTOResponse(source *domain.Source) SourceResponse {
	return SourceResponse{
		ID:                  source.ID.String(),
		OwnerID:             source.OwnerID.String(),
		FeedURL:             source.FeedURL,
		PollIntervalSeconds: source.PollIntervalSeconds,
		LastPolledAt:        source.LastPolledAt,
		CreatedAt:           source.CreatedAt,
		UpdatedAt:           source.UpdatedAt,
	}
}
