package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for ContentItem.
var (
	ErrEmptyItemID       = errors.New("item ID cannot be empty")
	ErrEmptyItemOwnerID  = errors.New("item owner ID cannot be empty")
	ErrEmptyItemSourceID = errors.New("item source ID cannot be empty")
	ErrEmptyItemURL      = errors.New("item URL cannot be empty")
)

// ContentItem is the unit flowing through the pipeline: one ingested
// article. Stage flags record which pipeline stages have been attempted
// and how they ended; they are mutated exclusively through the store's
// MarkStage operation.
type ContentItem struct {
	ID        uuid.UUID             `json:"id"`
	OwnerID   uuid.UUID             `json:"owner_id"`
	SourceID  uuid.UUID             `json:"source_id"`
	URL       string                `json:"url"`
	Title     string                `json:"title"`
	Body      string                `json:"body"`
	Stages    map[Stage]StageResult `json:"stages"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NewContentItem creates a ContentItem with all stage flags unset.
// Returns an error if validation fails.
func NewContentItem(ownerID, sourceID uuid.UUID, url, title, body string) (*ContentItem, error) {
	now := time.Now().UTC()
	item := &ContentItem{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		SourceID:  sourceID,
		URL:       url,
		Title:     title,
		Body:      body,
		Stages:    emptyStages(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := item.Validate(); err != nil {
		return nil, err
	}

	return item, nil
}

// Validate checks if the ContentItem has valid data.
func (i *ContentItem) Validate() error {
	if i.ID == uuid.Nil {
		return ErrEmptyItemID
	}
	if i.OwnerID == uuid.Nil {
		return ErrEmptyItemOwnerID
	}
	if i.SourceID == uuid.Nil {
		return ErrEmptyItemSourceID
	}
	if i.URL == "" {
		return ErrEmptyItemURL
	}
	for stage, result := range i.Stages {
		if !IsValidStage(stage) {
			return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
		}
		if !isValidStageState(result.State) {
			return fmt.Errorf("%w: %q", ErrInvalidStageState, result.State)
		}
	}
	return nil
}

// StageResultFor returns the recorded result for the given stage. Stages
// that were never attempted report StageUnset.
func (i *ContentItem) StageResultFor(stage Stage) StageResult {
	if result, ok := i.Stages[stage]; ok {
		return result
	}
	return StageResult{State: StageUnset}
}

// CanAttempt reports whether the given stage may be attempted now: every
// prior stage must have succeeded, and the stage itself must not already
// be a success. A failed stage may be re-attempted in place.
func (i *ContentItem) CanAttempt(stage Stage) error {
	if !IsValidStage(stage) {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if prior, ok := PriorStage(stage); ok {
		if i.StageResultFor(prior).State != StageSuccess {
			return fmt.Errorf("%w: %s before %s", ErrStageOrder, prior, stage)
		}
	}
	if i.StageResultFor(stage).State == StageSuccess {
		return fmt.Errorf("%w: %s", ErrStageFinal, stage)
	}
	return nil
}

// ApplyStageResult records a stage outcome on the item, enforcing the
// ordering and monotonicity invariants. Recording the same terminal state
// twice is an idempotent no-op, which keeps at-least-once delivery safe.
func (i *ContentItem) ApplyStageResult(stage Stage, result StageResult) error {
	if !IsValidStage(stage) {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	if !isValidStageState(result.State) || result.State == StageUnset {
		return fmt.Errorf("%w: %q", ErrInvalidStageState, result.State)
	}

	current := i.StageResultFor(stage)
	if current.State == StageSuccess {
		if result.State == StageSuccess {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrStageFinal, stage)
	}

	if prior, ok := PriorStage(stage); ok {
		if i.StageResultFor(prior).State != StageSuccess {
			return fmt.Errorf("%w: %s before %s", ErrStageOrder, prior, stage)
		}
	}

	if i.Stages == nil {
		i.Stages = emptyStages()
	}
	if result.CompletedAt == nil {
		now := time.Now().UTC()
		result.CompletedAt = &now
	}
	i.Stages[stage] = result
	i.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetStagesFrom clears the given stage and every later stage back to
// unset. This is the explicit external re-processing path; the automatic
// flow never rewinds a success.
func (i *ContentItem) ResetStagesFrom(stage Stage) error {
	if !IsValidStage(stage) {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	clearing := false
	for _, s := range StageOrder {
		if s == stage {
			clearing = true
		}
		if clearing {
			i.Stages[s] = StageResult{State: StageUnset}
		}
	}
	i.UpdatedAt = time.Now().UTC()
	return nil
}

func emptyStages() map[Stage]StageResult {
	stages := make(map[Stage]StageResult, len(StageOrder))
	for _, s := range StageOrder {
		stages[s] = StageResult{State: StageUnset}
	}
	return stages
}
