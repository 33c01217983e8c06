package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	out "focusguard/internal/modules/daemon/adapter/out"
	"focusguard/internal/modules/daemon/domain"
	daemonout "focusguard/internal/modules/daemon/port/out"
	"focusguard/internal/modules/daemon/service"
	sessiondto "focusguard/internal/modules/session/dto"
)

type fakeHost struct {
	started chan struct{}
	resets  atomic.Int32
}

func newFakeHost() *fakeHost {
	return &fakeHost{started: make(chan struct{})}
}

func (h *fakeHost) Run(ctx context.Context) error {
	close(h.started)
	<-ctx.Done()
	return nil
}

func (h *fakeHost) Dispatch(_ context.Context, tabID int, raw []byte) ([]byte, error) {
	return append([]byte("echo:"), raw...), nil
}

func (h *fakeHost) Status(context.Context) (sessiondto.Status, error) {
	return sessiondto.Status{Initialized: true, CooldownMs: 300000}, nil
}

func (h *fakeHost) Summary(context.Context) (analyticsdomain.Summary, error) {
	return analyticsdomain.Summary{TotalSessions: 2}, nil
}

func (h *fakeHost) Export(_ context.Context, format, _ string) (daemonout.ExportResult, error) {
	return daemonout.ExportResult{Format: format, Payload: "payload"}, nil
}

func (h *fakeHost) Reset(context.Context) error {
	h.resets.Add(1)
	return nil
}

func newStore(t *testing.T) daemonout.DaemonStore {
	t.Helper()
	// unix socket paths are length limited; keep the directory short
	dir, err := os.MkdirTemp("", "fg")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return out.NewFileDaemonStore(
		filepath.Join(dir, "daemon.pid"),
		filepath.Join(dir, "fg.sock"),
		filepath.Join(dir, "daemon.log"),
	)
}

func waitReachable(t *testing.T, client *service.Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := client.Status(context.Background())
		return err == nil
	}, 3*time.Second, 25*time.Millisecond)
}

func TestRunDaemonServesControlAPIAndStopsOverSocket(t *testing.T) {
	store := newStore(t)
	host := newFakeHost()
	ipcClient := out.NewJSONRPCClient()
	svc := service.NewDaemonService(store, out.NewJSONRPCServer(), ipcClient, host, nil, nil)
	client := service.NewClient(store, ipcClient)

	done := make(chan error, 1)
	go func() { done <- svc.RunDaemon(context.Background()) }()
	<-host.started
	waitReachable(t, client)

	pid, err := store.ReadPID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	reply, err := client.Send(context.Background(), 3, []byte(`{"action":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, `echo:{"action":"ping"}`, string(reply))

	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Initialized)

	exported, err := client.Export(context.Background(), domain.FormatCSV, "")
	require.NoError(t, err)
	assert.Equal(t, "payload", exported.Payload)

	_, err = client.Export(context.Background(), "xml", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown export format")

	require.NoError(t, client.Reset(context.Background()))
	assert.Equal(t, int32(1), host.resets.Load())

	require.NoError(t, ipcClient.Stop(context.Background(), store.SocketPath()))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, err = store.ReadPID(context.Background())
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(store.SocketPath())
	assert.True(t, os.IsNotExist(err))
}

func TestClientReportsDaemonNotRunning(t *testing.T) {
	store := newStore(t)
	client := service.NewClient(store, out.NewJSONRPCClient())

	_, err := client.Status(context.Background())
	assert.ErrorIs(t, err, domain.ErrDaemonNotRunning)
	_, err = client.Send(context.Background(), 1, []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrDaemonNotRunning)
}

func TestRunDaemonRequiresHost(t *testing.T) {
	svc := service.NewDaemonService(newStore(t), out.NewJSONRPCServer(), nil, nil, nil, nil)
	err := svc.RunDaemon(context.Background())
	assert.ErrorIs(t, err, domain.ErrDaemonStartFailed)
}

func TestDaemonStatusClearsStalePID(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.WritePID(ctx, 0))
	svc := service.NewDaemonService(store, nil, out.NewJSONRPCClient(), nil, nil, nil)

	status, err := svc.DaemonStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)

	require.NoError(t, svc.StopDaemon(ctx))
	_, err = store.ReadPID(ctx)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDaemonLogsTails(t *testing.T) {
	store := newStore(t)
	require.NoError(t, os.WriteFile(store.LogPath(), []byte("one\ntwo\nthree\n"), 0o644))
	svc := service.NewDaemonService(store, nil, nil, nil, nil, nil)

	logs, err := svc.DaemonLogs(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "two\nthree", logs)
}
