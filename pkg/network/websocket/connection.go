package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn wraps a gorilla connection with deadlined writes,
// gorilla allows only one writer at a time.
type conn struct {
	sock      *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
}

func newConn(sock *websocket.Conn, writeWait time.Duration) *conn {
	return &conn{sock: sock, writeWait: writeWait}
}

// keepalive bounds the message size. With a non-zero pong wait
// the read fails when the remote side stops answering pings.
func (c *conn) keepalive(pongWait time.Duration) {
	c.sock.SetReadLimit(maxMessageSize)
	if pongWait <= 0 {
		return
	}
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})
}

func (c *conn) read() ([]byte, error) {
	_, message, err := c.sock.ReadMessage()
	return message, err
}

func (c *conn) write(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		return err
	}
	return c.sock.WriteMessage(kind, data)
}

// shutdown sends the normal close frame and drops the socket.
func (c *conn) shutdown() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait))
	return c.sock.Close()
}
