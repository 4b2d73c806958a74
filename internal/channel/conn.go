package channel

import (
	"context"

	"github.com/coder/websocket"
)

// Conn is the transport a channel runs over. Tests substitute in-memory
// pipes; production uses WebsocketDialer.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, target string) (Conn, error)
}

type WebsocketDialer struct{}

func (WebsocketDialer) Dial(ctx context.Context, target string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "bye")
}
