//go:build !tinygo

package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"ecservice-go/config"
)

func init() {
	RegisterTransport("ws", newWSTransport)
}

type wsTransport struct{ url string }

func newWSTransport(cfg config.TransportConfig) (Transport, error) {
	if cfg.WS == nil {
		return nil, errors.New("host: ws transport requires a url")
	}
	u, err := url.Parse(cfg.WS.URL)
	if err != nil {
		return nil, fmt.Errorf("host: invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("host: unsupported scheme %q", u.Scheme)
	}
	return &wsTransport{url: cfg.WS.URL}, nil
}

func (t *wsTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := d.DialContext(ctx, t.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	return &wsStream{conn: conn}, nil
}

func (t *wsTransport) String() string { return "ws:" + t.url }

// wsStream presents binary websocket messages as a byte stream. Each
// Write is sent as one message, so a frame never spans messages.
type wsStream struct {
	conn *websocket.Conn
	buf  []byte
}

func (w *wsStream) Read(p []byte) (int, error) {
	for len(w.buf) == 0 {
		typ, data, err := w.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if typ == websocket.BinaryMessage {
			w.buf = data
		}
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

func (w *wsStream) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Close() error { return w.conn.Close() }
