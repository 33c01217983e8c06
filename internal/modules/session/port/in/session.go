package in

import (
	"context"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	"focusguard/internal/modules/session/dto"
)

type Usecase interface {
	dto.Handler
	Dispatch(ctx context.Context, sender dto.Sender, req dto.Request) (any, error)
	Status(ctx context.Context) (dto.Status, error)
	Summary(ctx context.Context) (analyticsdomain.Summary, error)
}
