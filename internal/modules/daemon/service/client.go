package service

import (
	"context"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	"focusguard/internal/modules/daemon/domain"
	daemonout "focusguard/internal/modules/daemon/port/out"
	sessiondto "focusguard/internal/modules/session/dto"
)

// Client reaches a running daemon over its control socket.
type Client struct {
	daemon daemonout.DaemonStore
	ipc    daemonout.IPCClient
}

func NewClient(daemon daemonout.DaemonStore, ipc daemonout.IPCClient) *Client {
	return &Client{daemon: daemon, ipc: ipc}
}

func (c *Client) socket() (string, error) {
	path := c.daemon.SocketPath()
	if !socketReachable(path) {
		return "", domain.ErrDaemonNotRunning
	}
	return path, nil
}

func (c *Client) Send(ctx context.Context, tabID int, raw []byte) ([]byte, error) {
	path, err := c.socket()
	if err != nil {
		return nil, err
	}
	return c.ipc.Dispatch(ctx, path, tabID, raw)
}

func (c *Client) Status(ctx context.Context) (sessiondto.Status, error) {
	path, err := c.socket()
	if err != nil {
		return sessiondto.Status{}, err
	}
	return c.ipc.Status(ctx, path)
}

func (c *Client) Summary(ctx context.Context) (analyticsdomain.Summary, error) {
	path, err := c.socket()
	if err != nil {
		return analyticsdomain.Summary{}, err
	}
	return c.ipc.Summary(ctx, path)
}

func (c *Client) Export(ctx context.Context, format, dir string) (daemonout.ExportResult, error) {
	path, err := c.socket()
	if err != nil {
		return daemonout.ExportResult{}, err
	}
	return c.ipc.Export(ctx, path, format, dir)
}

func (c *Client) Reset(ctx context.Context) error {
	path, err := c.socket()
	if err != nil {
		return err
	}
	return c.ipc.Reset(ctx, path)
}
