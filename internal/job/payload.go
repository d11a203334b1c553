package job

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PayloadVersion is the current payload schema version. Every payload
// records the version it was written with so stale entries are rejected
// explicitly instead of being misread.
const PayloadVersion = 1

// Payload decode errors.
var (
	ErrUnknownKind       = errors.New("unknown job kind")
	ErrBadPayload        = errors.New("malformed job payload")
	ErrPayloadVersion    = errors.New("unsupported payload version")
	ErrIncompletePayload = errors.New("payload missing required fields")
)

// SourcePollPayload triggers a poll of one feed source.
type SourcePollPayload struct {
	Version  int       `json:"version"`
	SourceID uuid.UUID `json:"source_id"`
}

// ItemStagePayload targets a single item for a whole-item stage
// (normalize, embed, crossref).
type ItemStagePayload struct {
	Version int       `json:"version"`
	ItemID  uuid.UUID `json:"item_id"`
	// Force requests immediate scheduling, bypassing stagger delays.
	Force bool `json:"force,omitempty"`
}

// NormalizeImagePayload is one fan-out child of the normalize stage: a
// single image reference to normalize, tagged with its gather group.
type NormalizeImagePayload struct {
	Version  int       `json:"version"`
	ItemID   uuid.UUID `json:"item_id"`
	GroupID  uuid.UUID `json:"group_id"`
	ChildID  string    `json:"child_id"`
	ImageURL string    `json:"image_url"`
}

// GatherCallbackPayload is the fan-in callback enqueued once every child
// of a gather group has reported completion.
type GatherCallbackPayload struct {
	Version int       `json:"version"`
	GroupID uuid.UUID `json:"group_id"`
	ItemID  uuid.UUID `json:"item_id"`
}

// DecodePayload parses and validates a job's payload according to its
// kind. Jobs with unknown kinds or malformed payloads are permanent
// failures: retrying cannot fix them.
func DecodePayload(j *Job) (any, error) {
	switch j.Kind {
	case KindSourcePoll:
		var p SourcePollPayload
		if err := unmarshalPayload(j.Payload, &p, p.checkVersion); err != nil {
			return nil, err
		}
		if p.SourceID == uuid.Nil {
			return nil, fmt.Errorf("%w: source_id", ErrIncompletePayload)
		}
		return &p, nil

	case KindNormalize, KindEmbed, KindCrossReference:
		var p ItemStagePayload
		if err := unmarshalPayload(j.Payload, &p, p.checkVersion); err != nil {
			return nil, err
		}
		if p.ItemID == uuid.Nil {
			return nil, fmt.Errorf("%w: item_id", ErrIncompletePayload)
		}
		return &p, nil

	case KindNormalizeImage:
		var p NormalizeImagePayload
		if err := unmarshalPayload(j.Payload, &p, p.checkVersion); err != nil {
			return nil, err
		}
		if p.ItemID == uuid.Nil || p.GroupID == uuid.Nil || p.ChildID == "" || p.ImageURL == "" {
			return nil, fmt.Errorf("%w: normalize_image fields", ErrIncompletePayload)
		}
		return &p, nil

	case KindGatherCallback:
		var p GatherCallbackPayload
		if err := unmarshalPayload(j.Payload, &p, p.checkVersion); err != nil {
			return nil, err
		}
		if p.GroupID == uuid.Nil || p.ItemID == uuid.Nil {
			return nil, fmt.Errorf("%w: gather_callback fields", ErrIncompletePayload)
		}
		return &p, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, j.Kind)
	}
}

func (p *SourcePollPayload) checkVersion() int    { return p.Version }
func (p *ItemStagePayload) checkVersion() int     { return p.Version }
func (p *NormalizeImagePayload) checkVersion() int { return p.Version }
func (p *GatherCallbackPayload) checkVersion() int { return p.Version }

func unmarshalPayload(raw json.RawMessage, v any, version func() int) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if got := version(); got != PayloadVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrPayloadVersion, got, PayloadVersion)
	}
	return nil
}
