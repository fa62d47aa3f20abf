package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"groupchat/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSender) Send(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return f.err
}

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func newBridge(t *testing.T, sender Sender) (*HttpServer, *httptest.Server) {
	t.Helper()
	s := NewHttpServer(sender, Info{Nickname: "alice", Local: "192.168.1.2", Broadcast: "192.168.1.255", Port: 29999, Encrypted: true})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, s *HttpServer, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return s.Clients() > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func TestInfo(t *testing.T) {
	_, ts := newBridge(t, &fakeSender{})

	resp, err := http.Get(ts.URL + "/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var info Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "alice", info.Nickname)
	assert.Equal(t, 29999, info.Port)
	assert.True(t, info.Encrypted)
}

func TestEventsAreStreamed(t *testing.T) {
	s, ts := newBridge(t, &fakeSender{})
	conn := dial(t, s, ts)

	s.Deliver(context.Background(), model.Event{
		Message: model.ChatMessage{Sender: "bob", Body: "hello"},
		Origin:  model.OriginRemote,
		From:    netip.MustParseAddrPort("192.168.1.3:29999"),
		At:      time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got map[string]any
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "bob", got["sender"])
	assert.Equal(t, "hello", got["msg"])
	assert.Equal(t, "remote", got["origin"])
	assert.Equal(t, "192.168.1.3:29999", got["from"])
}

func TestFramesAreSent(t *testing.T) {
	sender := &fakeSender{}
	s, ts := newBridge(t, sender)
	conn := dial(t, s, ts)

	require.NoError(t, conn.WriteJSON(sendRequest{Text: "hi all"}))
	assert.Eventually(t, func() bool {
		texts := sender.sent()
		return len(texts) == 1 && texts[0] == "hi all"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSendErrorIsReported(t *testing.T) {
	sender := &fakeSender{err: errors.New("network unreachable")}
	s, ts := newBridge(t, sender)
	conn := dial(t, s, ts)

	require.NoError(t, conn.WriteJSON(sendRequest{Text: "hi"}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply errorReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply.Error, "network unreachable")
}

func TestInvalidFrame(t *testing.T) {
	sender := &fakeSender{}
	s, ts := newBridge(t, sender)
	conn := dial(t, s, ts)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var reply errorReply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply.Error, "invalid request")
	assert.Empty(t, sender.sent())
}

func TestClientRemovedOnClose(t *testing.T) {
	s, ts := newBridge(t, &fakeSender{})
	conn := dial(t, s, ts)

	conn.Close()
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)

	// delivering with no clients must not panic
	s.Deliver(context.Background(), model.Event{Message: model.ChatMessage{Sender: "info", Body: "x"}, Origin: model.OriginInfo})
}
