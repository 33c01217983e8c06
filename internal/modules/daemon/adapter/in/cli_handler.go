package in

import (
	"context"

	"focusguard/internal/modules/daemon/dto"
	daemonin "focusguard/internal/modules/daemon/port/in"
	sessiondto "focusguard/internal/modules/session/dto"
)

type CLIHandler struct {
	usecase daemonin.Usecase
}

func NewCLIHandler(usecase daemonin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) RunDaemon(ctx context.Context) error {
	return h.usecase.RunDaemon(ctx)
}

func (h CLIHandler) StartDaemon(ctx context.Context) error {
	return h.usecase.StartDaemon(ctx)
}

func (h CLIHandler) StopDaemon(ctx context.Context) error {
	return h.usecase.StopDaemon(ctx)
}

func (h CLIHandler) DaemonStatus(ctx context.Context) (dto.DaemonStatusOutput, error) {
	return h.usecase.DaemonStatus(ctx)
}

func (h CLIHandler) DaemonLogs(ctx context.Context, tail int) (string, error) {
	return h.usecase.DaemonLogs(ctx, tail)
}

func (h CLIHandler) Send(ctx context.Context, tabID int, raw []byte) ([]byte, error) {
	return h.usecase.Send(ctx, tabID, raw)
}

func (h CLIHandler) Status(ctx context.Context) (sessiondto.Status, error) {
	return h.usecase.Status(ctx)
}

func (h CLIHandler) Summary(ctx context.Context) (dto.SummaryOutput, error) {
	return h.usecase.Summary(ctx)
}

func (h CLIHandler) Export(ctx context.Context, format, dir string) (dto.ExportOutput, error) {
	return h.usecase.Export(ctx, format, dir)
}

func (h CLIHandler) Reset(ctx context.Context) error {
	return h.usecase.Reset(ctx)
}
