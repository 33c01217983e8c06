package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	"focusguard/internal/modules/session/domain"
	"focusguard/internal/modules/session/dto"
	sessionin "focusguard/internal/modules/session/port/in"
	sessionout "focusguard/internal/modules/session/port/out"
	"focusguard/internal/modules/session/service"
	sitedomain "focusguard/internal/modules/site/domain"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/metrics"
)

// Interactor answers the message API on top of the coordinator, the site
// registry and the analytics recorder.
type Interactor struct {
	coord     *service.Coordinator
	sites     *sitedomain.Registry
	analytics sessionout.Analytics
	logger    *slog.Logger
}

func NewInteractor(coord *service.Coordinator, sites *sitedomain.Registry, analytics sessionout.Analytics, logger *slog.Logger) sessionin.Usecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interactor{coord: coord, sites: sites, analytics: analytics, logger: logger}
}

func (i *Interactor) Dispatch(ctx context.Context, sender dto.Sender, req dto.Request) (any, error) {
	if req == nil {
		return nil, apperrors.ErrUnknownAction
	}
	started := time.Now()
	resp, err := req.Accept(ctx, sender, i)
	metrics.MessagesTotal.WithLabelValues(req.Action(), metrics.Result(err)).Inc()
	i.logger.Debug("message handled",
		slog.String("action", req.Action()),
		slog.Int("tab_id", sender.TabID),
		slog.Duration("took", time.Since(started)),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Action(), err)
	}
	return resp, nil
}

func (i *Interactor) Ping(context.Context, dto.Sender, dto.PingRequest) (dto.PingResponse, error) {
	return dto.PingResponse{Pong: true}, nil
}

func (i *Interactor) CheckIntentionNeeded(ctx context.Context, sender dto.Sender, req dto.CheckIntentionRequest) (dto.CheckIntentionResponse, error) {
	tabID := dto.TabOr(req.TabID, sender)
	return dto.CheckIntentionResponse{
		NeedsIntention: i.coord.IsPromptOwed(ctx, req.Site, tabID),
		Site:           req.Site,
	}, nil
}

// SetIntention reports validation and storage failures in the response body;
// only unexpected errors are returned.
func (i *Interactor) SetIntention(ctx context.Context, sender dto.Sender, req dto.SetIntentionRequest) (dto.SetIntentionResponse, error) {
	err := i.coord.SetIntention(ctx, sender.TabID, req.Input)
	switch {
	case err == nil:
		return dto.SetIntentionResponse{Success: true}, nil
	case errors.Is(err, apperrors.ErrInvalidInput), errors.Is(err, apperrors.ErrStorage):
		return dto.SetIntentionResponse{Success: false, Error: apperrors.Message(err)}, nil
	default:
		return dto.SetIntentionResponse{Success: false, Error: err.Error()}, nil
	}
}

func (i *Interactor) GetActiveSession(ctx context.Context, sender dto.Sender, req dto.GetActiveSessionRequest) (*domain.Session, error) {
	s, ok := i.coord.GetActiveSession(ctx, dto.TabOr(req.TabID, sender))
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (i *Interactor) GetIntentionTemplates(ctx context.Context, _ dto.Sender, req dto.TemplatesRequest) (dto.TemplatesResponse, error) {
	templates, err := i.analytics.Templates(ctx, req.Site)
	if err != nil {
		i.logger.Warn("load templates failed", slog.String("error", err.Error()))
		templates = []string{}
	}
	return dto.TemplatesResponse{Templates: templates}, nil
}

func (i *Interactor) TrackActivity(ctx context.Context, sender dto.Sender, req dto.TrackActivityRequest) (dto.SuccessResponse, error) {
	if err := i.analytics.TrackActivity(ctx, sender.TabID, req.Site, req.ActivityType, req.ActivityData); err != nil {
		i.logger.Warn("activity not recorded", slog.String("error", err.Error()))
		return dto.SuccessResponse{Success: false}, nil
	}
	return dto.SuccessResponse{Success: true}, nil
}

func (i *Interactor) TrackSessionReflection(ctx context.Context, sender dto.Sender, req dto.ReflectionRequest) (dto.SuccessResponse, error) {
	if err := i.analytics.AddReflection(ctx, sender.TabID, req.Outcome); err != nil {
		i.logger.Warn("reflection not recorded", slog.String("error", err.Error()))
		return dto.SuccessResponse{Success: false}, nil
	}
	return dto.SuccessResponse{Success: true}, nil
}

func (i *Interactor) NavigationCommitted(ctx context.Context, sender dto.Sender, req dto.NavigationRequest) (dto.NavigationResponse, error) {
	match, err := i.sites.ClassifyURL(req.URL)
	if err != nil {
		i.logger.Debug("skipping navigation", slog.String("url", req.URL), slog.String("error", err.Error()))
		return dto.NavigationResponse{}, nil
	}
	if !match.Monitored {
		return dto.NavigationResponse{}, nil
	}
	site := string(match.Site)
	owed := i.coord.IsPromptOwed(ctx, site, sender.TabID)
	if owed {
		if err := i.coord.RecordNavigation(ctx, sender.TabID, req.URL, site); err != nil {
			i.logger.Warn("navigation not recorded", slog.String("error", err.Error()))
		}
	}
	return dto.NavigationResponse{Monitored: true, Site: site, NeedsIntention: owed}, nil
}

func (i *Interactor) TabClosed(ctx context.Context, sender dto.Sender, req dto.TabClosedRequest) (dto.SuccessResponse, error) {
	tabID := dto.TabOr(req.TabID, sender)
	if tabID <= 0 {
		return dto.SuccessResponse{Success: false}, nil
	}
	if err := i.coord.OnTabClosed(ctx, tabID); err != nil {
		return dto.SuccessResponse{Success: false}, err
	}
	return dto.SuccessResponse{Success: true}, nil
}

func (i *Interactor) Status(ctx context.Context) (dto.Status, error) {
	st := i.coord.Status(ctx)
	return dto.Status{
		Initialized:    st.Initialized,
		LastUpdate:     st.LastUpdate,
		CooldownMs:     st.Cooldown.Milliseconds(),
		StrictCooldown: st.StrictCooldown,
		ActiveSessions: st.Sessions,
	}, nil
}

func (i *Interactor) Summary(ctx context.Context) (analyticsdomain.Summary, error) {
	return i.analytics.Summary(ctx)
}
