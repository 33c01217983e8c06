package in

import (
	"context"
	"errors"
	"log/slog"

	"focusguard/internal/modules/session/dto"
	sessionin "focusguard/internal/modules/session/port/in"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/metrics"
)

// Endpoint turns raw message bytes into replies. The WebSocket gateway and
// the JSON-RPC control channel share it.
type Endpoint struct {
	usecase sessionin.Usecase
	logger  *slog.Logger
}

func NewEndpoint(usecase sessionin.Usecase, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{usecase: usecase, logger: logger}
}

func (e *Endpoint) Handle(ctx context.Context, sender dto.Sender, raw []byte) Reply {
	req, requestID, err := Decode(raw)
	if err != nil {
		action := "invalid"
		if errors.Is(err, apperrors.ErrUnknownAction) {
			action = "unknown"
		}
		metrics.MessagesTotal.WithLabelValues(action, "error").Inc()
		e.logger.Warn("rejecting message", slog.Int("tab_id", sender.TabID), slog.String("error", err.Error()))
		return Reply{RequestID: requestID, Action: action, Error: err.Error()}
	}
	resp, err := e.usecase.Dispatch(ctx, sender, req)
	if err != nil {
		e.logger.Error("message failed",
			slog.String("action", req.Action()),
			slog.Int("tab_id", sender.TabID),
			slog.String("error", err.Error()),
		)
		return Reply{RequestID: requestID, Action: req.Action(), Error: apperrors.Message(err)}
	}
	return Reply{RequestID: requestID, Action: req.Action(), Response: resp}
}
