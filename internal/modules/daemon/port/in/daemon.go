package in

import (
	"context"

	"focusguard/internal/modules/daemon/dto"
	sessiondto "focusguard/internal/modules/session/dto"
)

type Usecase interface {
	RunDaemon(ctx context.Context) error
	StartDaemon(ctx context.Context) error
	StopDaemon(ctx context.Context) error
	DaemonStatus(ctx context.Context) (dto.DaemonStatusOutput, error)
	DaemonLogs(ctx context.Context, tail int) (string, error)

	Send(ctx context.Context, tabID int, raw []byte) ([]byte, error)
	Status(ctx context.Context) (sessiondto.Status, error)
	Summary(ctx context.Context) (dto.SummaryOutput, error)
	Export(ctx context.Context, format, dir string) (dto.ExportOutput, error)
	Reset(ctx context.Context) error
}
