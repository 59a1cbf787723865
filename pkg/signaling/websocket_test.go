package signaling

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/network/websocket"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handler struct {
	states   chan State
	errors   chan error
	messages chan Message
}

func newHandler() *handler {
	return &handler{
		states:   make(chan State, 10),
		errors:   make(chan error, 10),
		messages: make(chan Message, 10),
	}
}

func (h *handler) OnStateChanged(s State) { h.states <- s }
func (h *handler) OnError(err error)      { h.errors <- err }
func (h *handler) OnMessage(m Message)    { h.messages <- m }

type server struct {
	*httptest.Server
	query    chan string
	sockets  chan *websocket.WS
	received chan []byte
}

func newServer(t *testing.T) *server {
	s := &server{query: make(chan string, 1), sockets: make(chan *websocket.WS, 1), received: make(chan []byte, 10)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.query <- r.URL.RawQuery
		ws, err := websocket.NewServer(w, r, logger.Nop())
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		ws.OnMessage = func(data []byte, err error) {
			if err == nil {
				s.received <- data
			}
		}
		ws.Listen()
		s.sockets <- ws
	}))
	t.Cleanup(s.Close)
	return s
}

func connect(t *testing.T, s *server, h Handler) *WebsocketTransport {
	conf := config.Signaling{Endpoint: "ws" + strings.TrimPrefix(s.URL, "http"), Channel: "test", ClientId: "master"}
	tr, err := NewWebsocketTransport(conf, nil, h, logger.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timeout")
	}
	var zero T
	return zero
}

func TestWebsocketSend(t *testing.T) {
	s := newServer(t)
	h := newHandler()
	tr := connect(t, s, h)

	assert.Equal(t, StateConnecting, wait(t, h.states))
	assert.Equal(t, StateConnected, wait(t, h.states))
	assert.Contains(t, wait(t, s.query), "channel=test")

	require.NoError(t, tr.Send(context.Background(), Message{Type: Answer, PeerId: "abc", Payload: `{"sdp":"x"}`}))

	var env envelope
	require.NoError(t, json.Unmarshal(wait(t, s.received), &env))
	assert.Equal(t, "SDP_ANSWER", env.Action)
	assert.Equal(t, "abc", env.RecipientClientId)
	payload, err := base64.StdEncoding.DecodeString(env.MessagePayload)
	require.NoError(t, err)
	assert.Equal(t, `{"sdp":"x"}`, string(payload))
}

func TestWebsocketReceive(t *testing.T) {
	s := newServer(t)
	h := newHandler()
	connect(t, s, h)
	ws := wait(t, s.sockets)

	data, _ := json.Marshal(envelope{
		MessageType:    "ICE_CANDIDATE",
		SenderClientId: "abc",
		MessagePayload: base64.StdEncoding.EncodeToString([]byte(`{"candidate":"c"}`)),
	})
	require.NoError(t, ws.Write(data))

	msg := wait(t, h.messages)
	assert.Equal(t, Message{Type: IceCandidate, PeerId: "abc", Payload: `{"candidate":"c"}`}, msg)

	require.NoError(t, ws.Write([]byte("{broken")))
	assert.True(t, errors.Is(wait(t, h.errors), ErrMalformedPayload))
}

func TestWebsocketRemoteClose(t *testing.T) {
	s := newServer(t)
	h := newHandler()
	tr := connect(t, s, h)
	wait(t, h.states)
	wait(t, h.states)

	wait(t, s.sockets).Close()

	assert.True(t, errors.Is(wait(t, h.errors), ErrReconnectRequired))
	assert.Equal(t, StateDisconnected, tr.State())
	assert.ErrorIs(t, tr.Send(context.Background(), Message{Type: Offer, PeerId: "abc"}), ErrNotConnected)
}

func TestWebsocketSendNotConnected(t *testing.T) {
	tr, err := NewWebsocketTransport(config.Signaling{Endpoint: "ws://localhost:1"}, nil, newHandler(), logger.Nop())
	require.NoError(t, err)
	assert.ErrorIs(t, tr.Send(context.Background(), Message{Type: Offer, PeerId: "abc"}), ErrNotConnected)
	assert.Error(t, tr.Send(context.Background(), Message{Type: UnknownMessage}))
}
