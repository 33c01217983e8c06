package in

import (
	"encoding/json"
	"fmt"
	"math"

	"focusguard/internal/modules/session/dto"
	apperrors "focusguard/internal/platform/errors"
)

// Reply is the envelope written back for every inbound message.
type Reply struct {
	RequestID string `json:"requestId,omitempty"`
	Action    string `json:"action"`
	Response  any    `json:"response"`
	Error     string `json:"error,omitempty"`
}

type envelope struct {
	Action    string `json:"action"`
	RequestID string `json:"requestId,omitempty"`
}

// Decode parses one message envelope into its request variant.
func Decode(raw []byte) (dto.Request, string, error) {
	env := envelope{}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", fmt.Errorf("%w: malformed message: %v", apperrors.ErrInvalidInput, err)
	}
	var (
		req dto.Request
		err error
	)
	switch env.Action {
	case dto.ActionPing:
		req = dto.PingRequest{}
	case dto.ActionCheckIntentionNeeded:
		req, err = decodeInto[dto.CheckIntentionRequest](raw)
	case dto.ActionSetIntention:
		req, err = decodeSetIntention(raw)
	case dto.ActionGetActiveSession:
		req, err = decodeInto[dto.GetActiveSessionRequest](raw)
	case dto.ActionGetIntentionTemplates:
		req, err = decodeInto[dto.TemplatesRequest](raw)
	case dto.ActionTrackActivity:
		req, err = decodeInto[dto.TrackActivityRequest](raw)
	case dto.ActionTrackSessionReflection:
		req, err = decodeInto[dto.ReflectionRequest](raw)
	case dto.ActionNavigationCommitted:
		req, err = decodeInto[dto.NavigationRequest](raw)
	case dto.ActionTabClosed:
		req, err = decodeInto[dto.TabClosedRequest](raw)
	default:
		return nil, env.RequestID, fmt.Errorf("%w: %q", apperrors.ErrUnknownAction, env.Action)
	}
	if err != nil {
		return nil, env.RequestID, err
	}
	return req, env.RequestID, nil
}

func decodeInto[T dto.Request](raw []byte) (dto.Request, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperrors.ErrInvalidInput, v.Action(), err)
	}
	return v, nil
}

// decodeSetIntention keeps loosely typed fields: a non-string site or
// intention becomes "" and a non-numeric duration becomes NaN, so the
// coordinator reports them with the same messages as missing values.
func decodeSetIntention(raw []byte) (dto.Request, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: setIntention: %v", apperrors.ErrInvalidInput, err)
	}
	site, _ := fields["site"].(string)
	intention, _ := fields["intention"].(string)
	duration, ok := fields["durationMinutes"]
	if !ok {
		duration = fields["duration"]
	}
	minutes, ok := duration.(float64)
	if !ok {
		minutes = math.NaN()
	}
	return dto.NewSetIntentionRequest(site, intention, minutes), nil
}
