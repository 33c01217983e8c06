package usecase

import (
	"context"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	"focusguard/internal/modules/daemon/dto"
	daemonin "focusguard/internal/modules/daemon/port/in"
	daemonout "focusguard/internal/modules/daemon/port/out"
	sessiondto "focusguard/internal/modules/session/dto"
)

type lifecycle interface {
	RunDaemon(ctx context.Context) error
	StartDaemon(ctx context.Context) error
	StopDaemon(ctx context.Context) error
	DaemonStatus(ctx context.Context) (daemonout.RuntimeStatus, error)
	DaemonLogs(ctx context.Context, tail int) (string, error)
}

type remote interface {
	Send(ctx context.Context, tabID int, raw []byte) ([]byte, error)
	Status(ctx context.Context) (sessiondto.Status, error)
	Summary(ctx context.Context) (analyticsdomain.Summary, error)
	Export(ctx context.Context, format, dir string) (daemonout.ExportResult, error)
	Reset(ctx context.Context) error
}

type Interactor struct {
	svc    lifecycle
	client remote
}

func NewInteractor(svc lifecycle, client remote) daemonin.Usecase {
	return &Interactor{svc: svc, client: client}
}

func (i *Interactor) RunDaemon(ctx context.Context) error {
	return i.svc.RunDaemon(ctx)
}

func (i *Interactor) StartDaemon(ctx context.Context) error {
	return i.svc.StartDaemon(ctx)
}

func (i *Interactor) StopDaemon(ctx context.Context) error {
	return i.svc.StopDaemon(ctx)
}

func (i *Interactor) DaemonStatus(ctx context.Context) (dto.DaemonStatusOutput, error) {
	status, err := i.svc.DaemonStatus(ctx)
	if err != nil {
		return dto.DaemonStatusOutput{}, err
	}
	return dto.DaemonStatusOutput{
		Running:    status.Running,
		PID:        status.PID,
		SocketPath: status.SocketPath,
		Status:     status.Status,
	}, nil
}

func (i *Interactor) DaemonLogs(ctx context.Context, tail int) (string, error) {
	return i.svc.DaemonLogs(ctx, tail)
}

func (i *Interactor) Send(ctx context.Context, tabID int, raw []byte) ([]byte, error) {
	return i.client.Send(ctx, tabID, raw)
}

func (i *Interactor) Status(ctx context.Context) (sessiondto.Status, error) {
	return i.client.Status(ctx)
}

func (i *Interactor) Summary(ctx context.Context) (dto.SummaryOutput, error) {
	return i.client.Summary(ctx)
}

func (i *Interactor) Export(ctx context.Context, format, dir string) (dto.ExportOutput, error) {
	result, err := i.client.Export(ctx, format, dir)
	if err != nil {
		return dto.ExportOutput{}, err
	}
	return dto.ExportOutput{Format: result.Format, Payload: result.Payload, Written: result.Written}, nil
}

func (i *Interactor) Reset(ctx context.Context) error {
	return i.client.Reset(ctx)
}
