package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	"focusguard/internal/modules/daemon/domain"
	daemonout "focusguard/internal/modules/daemon/port/out"
	sessiondto "focusguard/internal/modules/session/dto"
)

const (
	daemonStartTimeout  = 5 * time.Second
	daemonStopTimeout   = 2 * time.Second
	defaultLogTailLines = 200
)

// DaemonService owns the daemon process lifecycle. Inside the daemon it also
// answers the control API by delegating to the host.
type DaemonService struct {
	daemon    daemonout.DaemonStore
	ipcServer daemonout.IPCServer
	ipcClient daemonout.IPCClient
	host      daemonout.Host
	runArgs   []string
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDaemonService wires the lifecycle. runArgs are the arguments that make
// the current executable run the daemon in the foreground; host may be nil
// in processes that only talk to a running daemon.
func NewDaemonService(
	daemon daemonout.DaemonStore,
	ipcServer daemonout.IPCServer,
	ipcClient daemonout.IPCClient,
	host daemonout.Host,
	runArgs []string,
	logger *slog.Logger,
) *DaemonService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DaemonService{
		daemon:    daemon,
		ipcServer: ipcServer,
		ipcClient: ipcClient,
		host:      host,
		runArgs:   runArgs,
		logger:    logger,
	}
}

func (s *DaemonService) RunDaemon(ctx context.Context) error {
	if s.host == nil {
		return fmt.Errorf("%w: no host configured", domain.ErrDaemonStartFailed)
	}
	if s.ipcServer == nil {
		return fmt.Errorf("%w: ipc server is not configured", domain.ErrDaemonStartFailed)
	}
	if err := s.cleanupStaleArtifacts(ctx); err != nil {
		return err
	}
	if socketReachable(s.daemon.SocketPath()) {
		return fmt.Errorf("%w: another daemon is serving %s", domain.ErrDaemonStartFailed, s.daemon.SocketPath())
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.daemon.WritePID(ctx, os.Getpid()); err != nil {
		return err
	}
	defer s.cleanupRuntime(context.Background())

	s.logger.Info("daemon started", slog.Int("pid", os.Getpid()), slog.String("socket", s.daemon.SocketPath()))
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return s.host.Run(gctx)
	})
	g.Go(func() error {
		return s.ipcServer.Serve(gctx, s.daemon.SocketPath(), s)
	})
	err := g.Wait()
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, context.Canceled) {
		s.logger.Error("daemon stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("daemon stopped")
	return nil
}

func (s *DaemonService) StartDaemon(ctx context.Context) error {
	if err := s.cleanupStaleArtifacts(ctx); err != nil {
		return err
	}
	status, err := s.DaemonStatus(ctx)
	if err == nil && status.Running {
		if socketReachable(s.daemon.SocketPath()) {
			return nil
		}
		return fmt.Errorf("%w: daemon process is alive but socket is unavailable", domain.ErrDaemonStartFailed)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.daemon.LogPath()), 0o755); err != nil {
		return fmt.Errorf("create daemon log dir: %w", err)
	}
	logFile, err := os.OpenFile(s.daemon.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(execPath, s.runArgs...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Stdin = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	if err := s.daemon.WritePID(ctx, cmd.Process.Pid); err != nil {
		return err
	}
	_ = cmd.Process.Release()

	if err := waitForSocket(s.daemon.SocketPath(), daemonStartTimeout); err != nil {
		_ = s.daemon.ClearPID(ctx)
		return fmt.Errorf("%w: %v", domain.ErrDaemonStartFailed, err)
	}
	return nil
}

func (s *DaemonService) StopDaemon(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		return nil
	}

	if s.ipcClient != nil && socketReachable(s.daemon.SocketPath()) {
		_ = s.ipcClient.Stop(ctx, s.daemon.SocketPath())
	}

	pid, err := s.daemon.ReadPID(ctx)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(s.daemon.SocketPath())
			return nil
		}
		return err
	}
	if !processAlive(pid) {
		_ = s.daemon.ClearPID(ctx)
		_ = os.Remove(s.daemon.SocketPath())
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("stop daemon pid=%d: %w", pid, err)
	}
	deadline := time.Now().Add(daemonStopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if processAlive(pid) {
		_ = syscall.Kill(pid, syscall.SIGKILL)
	}
	if err := s.daemon.ClearPID(ctx); err != nil {
		return err
	}
	_ = os.Remove(s.daemon.SocketPath())
	return nil
}

func (s *DaemonService) DaemonStatus(ctx context.Context) (daemonout.RuntimeStatus, error) {
	out := daemonout.RuntimeStatus{SocketPath: s.daemon.SocketPath()}

	pid, err := s.daemon.ReadPID(ctx)
	if err == nil {
		out.PID = pid
		out.Running = processAlive(pid)
	}

	if out.Running && s.ipcClient != nil {
		status, statusErr := s.ipcClient.Status(ctx, s.daemon.SocketPath())
		if statusErr == nil {
			out.Status = status
		}
	}
	return out, nil
}

// DaemonLogs returns the last tail lines of the daemon log.
func (s *DaemonService) DaemonLogs(_ context.Context, tail int) (string, error) {
	if tail <= 0 {
		tail = defaultLogTailLines
	}
	f, err := os.Open(s.daemon.LogPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("open daemon log: %w", err)
	}
	defer f.Close()

	lines := make([]string, 0, tail)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(lines) == tail {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read daemon log: %w", err)
	}
	return strings.Join(lines, "\n"), nil
}

func (s *DaemonService) Dispatch(ctx context.Context, tabID int, raw []byte) ([]byte, error) {
	return s.host.Dispatch(ctx, tabID, raw)
}

func (s *DaemonService) Status(ctx context.Context) (sessiondto.Status, error) {
	return s.host.Status(ctx)
}

func (s *DaemonService) Summary(ctx context.Context) (analyticsdomain.Summary, error) {
	return s.host.Summary(ctx)
}

func (s *DaemonService) Export(ctx context.Context, format, dir string) (daemonout.ExportResult, error) {
	switch format {
	case domain.FormatJSON, domain.FormatCSV, domain.FormatNotes:
	default:
		return daemonout.ExportResult{}, fmt.Errorf("%w: %q", domain.ErrUnknownFormat, format)
	}
	return s.host.Export(ctx, format, dir)
}

func (s *DaemonService) Reset(ctx context.Context) error {
	return s.host.Reset(ctx)
}

func (s *DaemonService) Stop(ctx context.Context) error {
	return s.StopDaemon(ctx)
}

func (s *DaemonService) cleanupRuntime(ctx context.Context) {
	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
	_ = s.daemon.ClearPID(ctx)
	_ = os.Remove(s.daemon.SocketPath())
}

func (s *DaemonService) cleanupStaleArtifacts(ctx context.Context) error {
	pid, err := s.daemon.ReadPID(ctx)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	} else if pid > 0 && !processAlive(pid) {
		_ = s.daemon.ClearPID(ctx)
		_ = os.Remove(s.daemon.SocketPath())
	}

	if _, statErr := os.Stat(s.daemon.SocketPath()); statErr == nil {
		if !socketReachable(s.daemon.SocketPath()) {
			if removeErr := os.Remove(s.daemon.SocketPath()); removeErr != nil && !os.IsNotExist(removeErr) {
				return fmt.Errorf("remove stale daemon socket: %w", removeErr)
			}
		}
	}
	return nil
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if socketReachable(path) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon socket not ready: %s", path)
}

func socketReachable(path string) bool {
	conn, err := net.DialTimeout("unix", path, 150*time.Millisecond)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
