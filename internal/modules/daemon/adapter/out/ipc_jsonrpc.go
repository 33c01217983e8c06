package out

import (
	"context"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"time"

	analyticsdomain "focusguard/internal/modules/analytics/domain"
	daemonout "focusguard/internal/modules/daemon/port/out"
	sessiondto "focusguard/internal/modules/session/dto"
)

const serviceName = "FocusGuard"

type JSONRPCServer struct{}

type JSONRPCClient struct{}

func NewJSONRPCServer() daemonout.IPCServer {
	return &JSONRPCServer{}
}

func NewJSONRPCClient() daemonout.IPCClient {
	return &JSONRPCClient{}
}

type rpcHandler struct {
	h daemonout.IPCHandler
}

// net/rpc only registers methods whose argument and reply types are exported.
type DispatchArgs struct {
	TabID   int
	Message string
}

type DispatchReply struct {
	Reply string
}

type ExportArgs struct {
	Format string
	Dir    string
}

type StatusReply struct {
	Status sessiondto.Status
}

type Empty struct{}

func (s *rpcHandler) Dispatch(req DispatchArgs, resp *DispatchReply) error {
	reply, err := s.h.Dispatch(context.Background(), req.TabID, []byte(req.Message))
	if err != nil {
		return err
	}
	resp.Reply = string(reply)
	return nil
}

func (s *rpcHandler) Status(_ Empty, resp *StatusReply) error {
	status, err := s.h.Status(context.Background())
	if err != nil {
		return err
	}
	resp.Status = status
	return nil
}

func (s *rpcHandler) Summary(_ Empty, resp *analyticsdomain.Summary) error {
	summary, err := s.h.Summary(context.Background())
	if err != nil {
		return err
	}
	*resp = summary
	return nil
}

func (s *rpcHandler) Export(req ExportArgs, resp *daemonout.ExportResult) error {
	result, err := s.h.Export(context.Background(), req.Format, req.Dir)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *rpcHandler) Reset(_ Empty, _ *Empty) error {
	return s.h.Reset(context.Background())
}

func (s *rpcHandler) Stop(_ Empty, _ *Empty) error {
	return s.h.Stop(context.Background())
}

func (s *JSONRPCServer) Serve(ctx context.Context, socketPath string, handler daemonout.IPCHandler) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return fmt.Errorf("create ipc dir: %w", err)
	}
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale ipc socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen ipc socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod ipc socket: %w", err)
	}
	defer ln.Close()

	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName(serviceName, &rpcHandler{h: handler}); err != nil {
		return fmt.Errorf("register ipc handler: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		go rpcSrv.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

func (c *JSONRPCClient) Dispatch(ctx context.Context, socketPath string, tabID int, raw []byte) ([]byte, error) {
	resp := DispatchReply{}
	if err := call(ctx, socketPath, "Dispatch", DispatchArgs{TabID: tabID, Message: string(raw)}, &resp); err != nil {
		return nil, err
	}
	return []byte(resp.Reply), nil
}

func (c *JSONRPCClient) Status(ctx context.Context, socketPath string) (sessiondto.Status, error) {
	resp := StatusReply{}
	if err := call(ctx, socketPath, "Status", Empty{}, &resp); err != nil {
		return sessiondto.Status{}, err
	}
	return resp.Status, nil
}

func (c *JSONRPCClient) Summary(ctx context.Context, socketPath string) (analyticsdomain.Summary, error) {
	resp := analyticsdomain.Summary{}
	if err := call(ctx, socketPath, "Summary", Empty{}, &resp); err != nil {
		return analyticsdomain.Summary{}, err
	}
	return resp, nil
}

func (c *JSONRPCClient) Export(ctx context.Context, socketPath, format, dir string) (daemonout.ExportResult, error) {
	resp := daemonout.ExportResult{}
	if err := call(ctx, socketPath, "Export", ExportArgs{Format: format, Dir: dir}, &resp); err != nil {
		return daemonout.ExportResult{}, err
	}
	return resp, nil
}

func (c *JSONRPCClient) Reset(ctx context.Context, socketPath string) error {
	return call(ctx, socketPath, "Reset", Empty{}, &Empty{})
}

func (c *JSONRPCClient) Stop(ctx context.Context, socketPath string) error {
	return call(ctx, socketPath, "Stop", Empty{}, &Empty{})
}

func call(ctx context.Context, socketPath, method string, req, resp any) error {
	client, err := dialClient(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call(serviceName+"."+method, req, resp)
}

func dialClient(ctx context.Context, socketPath string) (*rpc.Client, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	client := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return client, nil
}
