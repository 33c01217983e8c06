package dto

import (
	"context"

	"focusguard/internal/modules/session/domain"
)

// Action names as they appear in the message envelope.
const (
	ActionPing                   = "ping"
	ActionCheckIntentionNeeded   = "checkIntentionNeeded"
	ActionSetIntention           = "setIntention"
	ActionGetActiveSession       = "getActiveSession"
	ActionGetIntentionTemplates  = "getIntentionTemplates"
	ActionTrackActivity          = "trackActivity"
	ActionTrackSessionReflection = "trackSessionReflection"
	ActionNavigationCommitted    = "navigationCommitted"
	ActionTabClosed              = "tabClosed"

	PushTimeUp         = "timeUp"
	PushStorageChanged = "storageChanged"
)

// Sender identifies where a request came from. TabID is zero for callers that
// are not bound to a tab.
type Sender struct {
	TabID int
}

// Request is the closed set of inbound messages. Each variant routes itself
// to its Handler method, so a new variant needs a handler to compile.
type Request interface {
	Action() string
	Accept(ctx context.Context, sender Sender, h Handler) (any, error)
}

// Handler has one method per Request variant.
type Handler interface {
	Ping(ctx context.Context, sender Sender, req PingRequest) (PingResponse, error)
	CheckIntentionNeeded(ctx context.Context, sender Sender, req CheckIntentionRequest) (CheckIntentionResponse, error)
	SetIntention(ctx context.Context, sender Sender, req SetIntentionRequest) (SetIntentionResponse, error)
	GetActiveSession(ctx context.Context, sender Sender, req GetActiveSessionRequest) (*domain.Session, error)
	GetIntentionTemplates(ctx context.Context, sender Sender, req TemplatesRequest) (TemplatesResponse, error)
	TrackActivity(ctx context.Context, sender Sender, req TrackActivityRequest) (SuccessResponse, error)
	TrackSessionReflection(ctx context.Context, sender Sender, req ReflectionRequest) (SuccessResponse, error)
	NavigationCommitted(ctx context.Context, sender Sender, req NavigationRequest) (NavigationResponse, error)
	TabClosed(ctx context.Context, sender Sender, req TabClosedRequest) (SuccessResponse, error)
}

type PingRequest struct{}

type PingResponse struct {
	Pong bool `json:"pong"`
}

type CheckIntentionRequest struct {
	Site  string `json:"site"`
	TabID int    `json:"tabId,omitempty"`
}

type CheckIntentionResponse struct {
	NeedsIntention bool   `json:"needsIntention"`
	Site           string `json:"site"`
}

type SetIntentionRequest struct {
	Input domain.IntentionInput
}

func NewSetIntentionRequest(site, intention string, durationMinutes float64) SetIntentionRequest {
	return SetIntentionRequest{Input: domain.IntentionInput{
		Site:            site,
		Intention:       intention,
		DurationMinutes: durationMinutes,
	}}
}

type SetIntentionResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type GetActiveSessionRequest struct {
	TabID int `json:"tabId,omitempty"`
}

type TemplatesRequest struct {
	Site string `json:"site"`
}

type TemplatesResponse struct {
	Templates []string `json:"templates"`
}

// TrackActivityRequest fields stay untyped; non-string values sanitize to "".
type TrackActivityRequest struct {
	Site         any `json:"site"`
	ActivityType any `json:"activityType"`
	ActivityData any `json:"activityData"`
}

type ReflectionRequest struct {
	Outcome any `json:"outcome"`
}

type NavigationRequest struct {
	URL string `json:"url"`
}

type NavigationResponse struct {
	Monitored      bool   `json:"monitored"`
	Site           string `json:"site,omitempty"`
	NeedsIntention bool   `json:"needsIntention"`
}

type TabClosedRequest struct {
	TabID int `json:"tabId,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (PingRequest) Action() string             { return ActionPing }
func (CheckIntentionRequest) Action() string   { return ActionCheckIntentionNeeded }
func (SetIntentionRequest) Action() string     { return ActionSetIntention }
func (GetActiveSessionRequest) Action() string { return ActionGetActiveSession }
func (TemplatesRequest) Action() string        { return ActionGetIntentionTemplates }
func (TrackActivityRequest) Action() string    { return ActionTrackActivity }
func (ReflectionRequest) Action() string       { return ActionTrackSessionReflection }
func (NavigationRequest) Action() string       { return ActionNavigationCommitted }
func (TabClosedRequest) Action() string        { return ActionTabClosed }

func (r PingRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	return h.Ping(ctx, s, r)
}

func (r CheckIntentionRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	return h.CheckIntentionNeeded(ctx, s, r)
}

func (r SetIntentionRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	return h.SetIntention(ctx, s, r)
}

func (r GetActiveSessionRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	session, err := h.GetActiveSession(ctx, s, r)
	if err != nil || session == nil {
		// no session is an untyped nil
		return nil, err
	}
	return session, nil
}

func (r TemplatesRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	return h.GetIntentionTemplates(ctx, s, r)
}

func (r TrackActivityRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	return h.TrackActivity(ctx, s, r)
}

func (r ReflectionRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	return h.TrackSessionReflection(ctx, s, r)
}

func (r NavigationRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	return h.NavigationCommitted(ctx, s, r)
}

func (r TabClosedRequest) Accept(ctx context.Context, s Sender, h Handler) (any, error) {
	return h.TabClosed(ctx, s, r)
}

// TabOr returns id when positive, else the sender's tab.
func TabOr(id int, sender Sender) int {
	if id > 0 {
		return id
	}
	return sender.TabID
}
