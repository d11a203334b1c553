package domain

import (
	"errors"
	"time"
)

// Stage identifies one ordered step of the content pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageNormalize Stage = "normalize"
	StageEmbed     Stage = "embed"
	StageCrossRef  Stage = "crossref"
)

// StageOrder lists the stages in the order they must complete.
// A later stage may only start once every earlier stage succeeded.
var StageOrder = []Stage{StageNormalize, StageEmbed, StageCrossRef}

// StageState is the tri-state flag recorded per stage on an item.
type StageState string

// Possible stage states.
const (
	StageUnset   StageState = "unset"
	StageSuccess StageState = "success"
	StageFailure StageState = "failure"
)

// Stage transition errors.
var (
	ErrUnknownStage      = errors.New("unknown pipeline stage")
	ErrStageOrder        = errors.New("prior stage has not succeeded")
	ErrStageFinal        = errors.New("stage already succeeded")
	ErrInvalidStageState = errors.New("invalid stage state")
)

// StageResult records the outcome of the most recent attempt at a stage.
// Count carries the stage-specific unit count: successfully normalized
// images, embedded chunks, or linked references.
type StageResult struct {
	State       StageState `json:"state"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Count       int        `json:"count,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// IsValidStage reports whether s names a known pipeline stage.
func IsValidStage(s Stage) bool {
	for _, known := range StageOrder {
		if s == known {
			return true
		}
	}
	return false
}

// PriorStage returns the stage immediately before s, or ok=false when s is
// the first stage.
func PriorStage(s Stage) (Stage, bool) {
	for i, known := range StageOrder {
		if s == known {
			if i == 0 {
				return "", false
			}
			return StageOrder[i-1], true
		}
	}
	return "", false
}

// NextStage returns the stage immediately after s, or ok=false when s is
// the last stage.
func NextStage(s Stage) (Stage, bool) {
	for i, known := range StageOrder {
		if s == known {
			if i == len(StageOrder)-1 {
				return "", false
			}
			return StageOrder[i+1], true
		}
	}
	return "", false
}

func isValidStageState(state StageState) bool {
	switch state {
	case StageUnset, StageSuccess, StageFailure:
		return true
	default:
		return false
	}
}
