package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/giongto35/rtc-canary/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
	sendQueue      = 32
)

var ErrClosed = errors.New("websocket: closed")

type WS struct {
	conn *conn
	send chan []byte

	// OnMessage is called from the reader goroutine.
	// A non-nil error means that the socket is gone.
	OnMessage func(message []byte, err error)

	pingPong bool
	log      *logger.Logger

	closed   chan struct{}
	once     sync.Once
	shutdown sync.WaitGroup
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
}

// NewServer upgrades an HTTP request into a websocket.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*WS, error) {
	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(sock, true, log), nil
}

// NewClient dials the address, the dial is bounded by ctx.
func NewClient(ctx context.Context, address url.URL, log *logger.Logger) (*WS, error) {
	sock, _, err := websocket.DefaultDialer.DialContext(ctx, address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(sock, false, log), nil
}

func newSocket(sock *websocket.Conn, pingPong bool, log *logger.Logger) *WS {
	return &WS{
		conn:     newConn(sock, writeWait),
		send:     make(chan []byte, sendQueue),
		pingPong: pingPong,
		log:      log,
		closed:   make(chan struct{}),
	}
}

// Listen starts the read and write pumps.
func (ws *WS) Listen() {
	ws.shutdown.Add(2)
	go ws.writer()
	go ws.reader()
}

// reader pumps messages from the websocket connection to the OnMessage callback.
// Serializes all websocket reads.
func (ws *WS) reader() {
	defer ws.shutdown.Done()
	var pong time.Duration
	if ws.pingPong {
		pong = pongTime
	}
	ws.conn.keepalive(pong)
	for {
		message, err := ws.conn.read()
		if err != nil {
			select {
			case <-ws.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					ws.log.Error().Err(err).Msg("ws read")
				}
				ws.Close()
				if ws.OnMessage != nil {
					ws.OnMessage(nil, err)
				}
			}
			return
		}
		if ws.OnMessage != nil {
			ws.OnMessage(message, nil)
		}
	}
}

// writer pumps messages from the send channel to the websocket connection.
func (ws *WS) writer() {
	defer ws.shutdown.Done()
	var ping <-chan time.Time
	if ws.pingPong {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		ping = ticker.C
	}
	for {
		select {
		case <-ws.closed:
			return
		case message := <-ws.send:
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				ws.log.Error().Err(err).Msg("ws write")
				return
			}
		case <-ping:
			if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Write queues the data, waiting no longer than the write timeout.
func (ws *WS) Write(data []byte) error {
	select {
	case <-ws.closed:
		return ErrClosed
	default:
	}
	select {
	case ws.send <- data:
		return nil
	case <-ws.closed:
		return ErrClosed
	case <-time.After(writeWait):
		return ErrClosed
	}
}

func (ws *WS) Close() {
	ws.once.Do(func() {
		close(ws.closed)
		_ = ws.conn.shutdown()
	})
}

// Done is closed when the socket is closed by any side.
func (ws *WS) Done() <-chan struct{} { return ws.closed }

// Wait blocks until both pumps finish.
func (ws *WS) Wait() { ws.shutdown.Wait() }
