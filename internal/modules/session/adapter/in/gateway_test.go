package in_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	in "focusguard/internal/modules/session/adapter/in"
	"focusguard/internal/modules/session/dto"
	sessionin "focusguard/internal/modules/session/port/in"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/kv"
)

// stubUsecase only answers Dispatch; the gateway never calls anything else.
type stubUsecase struct {
	sessionin.Usecase

	mu      sync.Mutex
	senders []dto.Sender
}

func (s *stubUsecase) Dispatch(_ context.Context, sender dto.Sender, req dto.Request) (any, error) {
	s.mu.Lock()
	s.senders = append(s.senders, sender)
	s.mu.Unlock()
	switch req.(type) {
	case dto.PingRequest:
		return dto.PingResponse{Pong: true}, nil
	case dto.TabClosedRequest:
		return nil, &apperrors.StorageError{Op: "set", Err: errors.New("disk full")}
	default:
		return dto.SuccessResponse{Success: true}, nil
	}
}

func newGatewayServer(t *testing.T, opts ...in.GatewayOption) (*in.Gateway, *stubUsecase, string) {
	t.Helper()
	uc := &stubUsecase{}
	gw := in.NewGateway(in.NewEndpoint(uc, nil), nil, nil, opts...)
	r := chi.NewRouter()
	gw.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return gw, uc, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readReply(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	out := map[string]any{}
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestGatewayAnswersMessagesWithTabSender(t *testing.T) {
	_, uc, base := newGatewayServer(t)
	conn := dial(t, base+"/ws/7")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping","requestId":"a"}`)))
	reply := readReply(t, conn)
	assert.Equal(t, "a", reply["requestId"])
	assert.Equal(t, "ping", reply["action"])
	assert.Equal(t, map[string]any{"pong": true}, reply["response"])

	uc.mu.Lock()
	require.Len(t, uc.senders, 1)
	assert.Equal(t, 7, uc.senders[0].TabID)
	uc.mu.Unlock()
}

func TestGatewayReportsErrors(t *testing.T) {
	_, _, base := newGatewayServer(t)
	conn := dial(t, base+"/ws/7")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"explode"}`)))
	reply := readReply(t, conn)
	assert.Equal(t, "unknown", reply["action"])
	assert.NotEmpty(t, reply["error"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"tabClosed"}`)))
	reply = readReply(t, conn)
	assert.Equal(t, "Storage transaction failed after retries", reply["error"])
}

func TestGatewayRejectsBadTabID(t *testing.T) {
	_, _, base := newGatewayServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/abc", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestNotifyTimeUpTargetsTab(t *testing.T) {
	gw, _, base := newGatewayServer(t)
	seven := dial(t, base+"/ws/7")
	eight := dial(t, base+"/ws/8")
	require.Eventually(t, func() bool { return gw.Connections() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, gw.NotifyTimeUp(context.Background(), 7))
	push := readReply(t, seven)
	assert.Equal(t, dto.PushTimeUp, push["action"])
	assert.Equal(t, float64(7), push["tabId"])

	err := gw.NotifyTimeUp(context.Background(), 99)
	assert.True(t, errors.Is(err, apperrors.ErrTabUnreachable))

	require.NoError(t, eight.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = eight.ReadMessage()
	require.Error(t, err)
}

func TestStorageChangesAreBroadcast(t *testing.T) {
	gw, _, base := newGatewayServer(t)
	conn := dial(t, base+"/ws")
	require.Eventually(t, func() bool { return gw.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	store := kv.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watching := make(chan error, 1)
	go func() { watching <- gw.WatchStore(ctx, store) }()

	writes := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-writes:
				return
			case <-ticker.C:
				_ = store.Set(context.Background(), map[string][]byte{kv.Key("totalTimeSpent"): []byte(`{}`)})
			}
		}
	}()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	close(writes)
	require.NoError(t, err)
	msg := dto.StorageChanged{}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, dto.PushStorageChanged, msg.Action)
	assert.Equal(t, []string{"totalTimeSpent"}, msg.Keys)

	cancel()
	require.NoError(t, <-watching)
}

func TestGatewayRefusesForeignOrigins(t *testing.T) {
	gw, uc, base := newGatewayServer(t, in.WithAllowedOrigins("chrome-extension://abcdef/"))

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(base+"/ws/7", header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, gw.Connections())

	header = http.Header{"Origin": []string{"chrome-extension://ABCDEF"}}
	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/7", header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	assert.Equal(t, map[string]any{"pong": true}, readReply(t, conn)["response"])

	// no Origin header: a local tool rather than a web page
	dial(t, base+"/ws/8")

	uc.mu.Lock()
	defer uc.mu.Unlock()
	assert.Len(t, uc.senders, 1)
}
