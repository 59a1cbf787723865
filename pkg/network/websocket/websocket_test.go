package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/giongto35/rtc-canary/pkg/logger"
)

func TestEcho(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := NewServer(w, r, logger.Nop())
		if err != nil {
			t.Error(err)
			return
		}
		ws.OnMessage = func(m []byte, err error) {
			if err == nil {
				_ = ws.Write(m)
			}
		}
		ws.Listen()
		ws.Wait()
	}))
	defer srv.Close()

	addr, _ := url.Parse(srv.URL)
	addr.Scheme = "ws"
	client, err := NewClient(context.Background(), *addr, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan string, 1)
	client.OnMessage = func(m []byte, err error) {
		if err == nil {
			got <- string(m)
		}
	}
	client.Listen()
	if err = client.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	select {
	case m := <-got:
		if m != "ping" {
			t.Errorf("got %q", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no echo")
	}

	client.Close()
	client.Wait()
	if err = client.Write([]byte("late")); err != ErrClosed {
		t.Errorf("write after close: %v", err)
	}
}
