package out

import (
	"context"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	sessiondto "focusguard/internal/modules/session/dto"
)

type DaemonStore interface {
	WritePID(ctx context.Context, pid int) error
	ReadPID(ctx context.Context) (int, error)
	ClearPID(ctx context.Context) error
	SocketPath() string
	LogPath() string
}

// Host is the application the daemon keeps running and answers for.
type Host interface {
	// Run blocks with the background services (gateway, store watch) until ctx ends.
	Run(ctx context.Context) error
	Dispatch(ctx context.Context, tabID int, raw []byte) ([]byte, error)
	Status(ctx context.Context) (sessiondto.Status, error)
	Summary(ctx context.Context) (analyticsdomain.Summary, error)
	Export(ctx context.Context, format, dir string) (ExportResult, error)
	Reset(ctx context.Context) error
}

type ExportResult struct {
	Format  string
	Payload string
	Written int
}

// IPCServer serves the local JSON-RPC control API.
type IPCServer interface {
	Serve(ctx context.Context, socketPath string, handler IPCHandler) error
}

// IPCClient talks to the local daemon JSON-RPC API.
type IPCClient interface {
	Dispatch(ctx context.Context, socketPath string, tabID int, raw []byte) ([]byte, error)
	Status(ctx context.Context, socketPath string) (sessiondto.Status, error)
	Summary(ctx context.Context, socketPath string) (analyticsdomain.Summary, error)
	Export(ctx context.Context, socketPath, format, dir string) (ExportResult, error)
	Reset(ctx context.Context, socketPath string) error
	Stop(ctx context.Context, socketPath string) error
}

type IPCHandler interface {
	Dispatch(ctx context.Context, tabID int, raw []byte) ([]byte, error)
	Status(ctx context.Context) (sessiondto.Status, error)
	Summary(ctx context.Context) (analyticsdomain.Summary, error)
	Export(ctx context.Context, format, dir string) (ExportResult, error)
	Reset(ctx context.Context) error
	Stop(ctx context.Context) error
}

type RuntimeStatus struct {
	Running    bool
	PID        int
	SocketPath string
	Status     sessiondto.Status
}
