package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	daemoninadapter "focusguard/internal/modules/daemon/adapter/in"
	daemonoutadapter "focusguard/internal/modules/daemon/adapter/out"
	daemonout "focusguard/internal/modules/daemon/port/out"
	daemonservice "focusguard/internal/modules/daemon/service"
	daemonusecase "focusguard/internal/modules/daemon/usecase"
	sitedomain "focusguard/internal/modules/site/domain"
	"focusguard/internal/platform/config"
	"focusguard/internal/ui/dashboard"
)

type App struct {
	Config    config.Config
	DaemonCLI daemoninadapter.CLIHandler
	Sites     *sitedomain.Registry
}

// New builds the client-side app: every command except the daemon itself
// talks to a running daemon over its socket. runArgs start the daemon in the
// foreground when re-executing this binary.
func New(cfg config.Config, logger *slog.Logger, runArgs []string) *App {
	return newApp(cfg, logger, nil, runArgs)
}

// NewDaemon builds the app with a live host. The caller must Close the host.
func NewDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, *Host, error) {
	host, err := NewHost(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("new host: %w", err)
	}
	return newApp(cfg, logger, host, nil), host, nil
}

func newApp(cfg config.Config, logger *slog.Logger, host daemonout.Host, runArgs []string) *App {
	daemonStore := daemonoutadapter.NewFileDaemonStore(cfg.PIDPath(), cfg.SocketPath, cfg.LogPath())
	ipcClient := daemonoutadapter.NewJSONRPCClient()
	daemonSvc := daemonservice.NewDaemonService(
		daemonStore,
		daemonoutadapter.NewJSONRPCServer(),
		ipcClient,
		host,
		runArgs,
		logger,
	)
	daemonUC := daemonusecase.NewInteractor(daemonSvc, daemonservice.NewClient(daemonStore, ipcClient))

	return &App{
		Config:    cfg,
		DaemonCLI: daemoninadapter.NewCLIHandler(daemonUC),
		Sites:     Registry(cfg),
	}
}

func RunDashboard(app *App) error {
	model := dashboard.NewModel(app.DaemonCLI)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
