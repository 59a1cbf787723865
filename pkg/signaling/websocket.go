package signaling

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/giongto35/rtc-canary/pkg/config"
	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/giongto35/rtc-canary/pkg/network/websocket"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v3"
)

// envelope is the JSON frame of the websocket channel,
// payloads are base64 encoded JSON descriptions or candidates.
type envelope struct {
	Action            string `json:"action,omitempty"`
	MessageType       string `json:"messageType,omitempty"`
	RecipientClientId string `json:"recipientClientId,omitempty"`
	SenderClientId    string `json:"senderClientId,omitempty"`
	MessagePayload    string `json:"messagePayload"`
}

var actions = map[MessageType]string{
	Offer:        "SDP_OFFER",
	Answer:       "SDP_ANSWER",
	IceCandidate: "ICE_CANDIDATE",
}

func actionType(action string) MessageType {
	for t, a := range actions {
		if a == action {
			return t
		}
	}
	return UnknownMessage
}

// WebsocketTransport is a signaling channel over a websocket connection.
type WebsocketTransport struct {
	conf    config.Signaling
	servers []webrtc.ICEServer
	h       Handler
	log     *logger.Logger

	mu    sync.Mutex
	ws    *websocket.WS
	state int32
}

func NewWebsocketDialer(conf config.Signaling, servers []webrtc.ICEServer, log *logger.Logger) Dialer {
	return func(h Handler) (Transport, error) { return NewWebsocketTransport(conf, servers, h, log) }
}

func NewWebsocketTransport(conf config.Signaling, servers []webrtc.ICEServer, h Handler, log *logger.Logger) (*WebsocketTransport, error) {
	if h == nil {
		return nil, fmt.Errorf("signaling: nil handler")
	}
	if _, err := url.Parse(conf.Endpoint); err != nil {
		return nil, err
	}
	return &WebsocketTransport{conf: conf, servers: servers, h: h, log: log.Mod("signaling")}, nil
}

func (t *WebsocketTransport) State() State { return State(atomic.LoadInt32(&t.state)) }

func (t *WebsocketTransport) setState(s State) {
	if State(atomic.SwapInt32(&t.state, int32(s))) != s {
		t.h.OnStateChanged(s)
	}
}

func (t *WebsocketTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.State() == StateConnected {
		return nil
	}
	address, err := url.Parse(t.conf.Endpoint)
	if err != nil {
		return err
	}
	q := address.Query()
	q.Set("channel", t.conf.Channel)
	q.Set("clientId", t.conf.ClientId)
	address.RawQuery = q.Encode()

	t.setState(StateConnecting)
	ws, err := websocket.NewClient(ctx, *address, t.log)
	if err != nil {
		t.setState(StateDisconnected)
		return fmt.Errorf("signaling connect: %w", err)
	}
	ws.OnMessage = t.handleMessage
	ws.Listen()
	t.ws = ws
	t.setState(StateConnected)
	t.log.Info().Str("channel", t.conf.Channel).Msgf("Connected to %v", address.Host)
	return nil
}

func (t *WebsocketTransport) handleMessage(data []byte, err error) {
	if err != nil {
		if t.State() == StateClosed {
			return
		}
		t.setState(StateDisconnected)
		t.h.OnError(fmt.Errorf("%w: %v", ErrReconnectRequired, err))
		return
	}
	var env envelope
	if err = json.Unmarshal(data, &env); err != nil {
		t.h.OnError(fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		return
	}
	payload, err := base64.StdEncoding.DecodeString(env.MessagePayload)
	if err != nil {
		t.h.OnError(fmt.Errorf("%w: %v", ErrMalformedPayload, err))
		return
	}
	msg := Message{Type: actionType(env.MessageType), PeerId: env.SenderClientId, Payload: string(payload)}
	if err = msg.Validate(); err != nil {
		t.h.OnError(err)
		return
	}
	t.h.OnMessage(msg)
}

func (t *WebsocketTransport) Send(_ context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	action, ok := actions[msg.Type]
	if !ok {
		return fmt.Errorf("signaling: can't send %v", msg.Type)
	}
	t.mu.Lock()
	ws := t.ws
	t.mu.Unlock()
	if ws == nil || t.State() != StateConnected {
		return ErrNotConnected
	}
	data, err := json.Marshal(envelope{
		Action:            action,
		RecipientClientId: msg.PeerId,
		MessagePayload:    base64.StdEncoding.EncodeToString([]byte(msg.Payload)),
	})
	if err != nil {
		return err
	}
	return ws.Write(data)
}

// IceServers returns the static relay servers of the channel.
func (t *WebsocketTransport) IceServers(context.Context) ([]webrtc.ICEServer, error) {
	return t.servers, nil
}

func (t *WebsocketTransport) Close() error {
	t.setState(StateClosed)
	t.mu.Lock()
	ws := t.ws
	t.ws = nil
	t.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
	return nil
}
