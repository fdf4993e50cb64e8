package venue

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// Conn wraps a single WebSocket connection to a venue. It sets a write
// deadline on every write but does not serialize concurrent writers
// (gorilla's Conn isn't safe for them), and it sets no read deadline; the
// connection manager drives the read loop directly so it can timestamp and
// byte-count every frame for metrics.
type Conn struct {
	ws *websocket.Conn
}

// Dial opens a WebSocket connection to url with an explicit connect
// timeout, per §5.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// WriteText sends a single text frame with a write deadline, per §5's
// recommended 5s subscription-frame write timeout.
func (c *Conn) WriteText(data string) error {
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(data))
}

// ReadMessage blocks until the next frame arrives or the connection
// errors. There is no read deadline, and no connector tracks heartbeat
// lapses (Parse discards heartbeat frames), so a silent venue is noticed
// only when the read itself returns an error.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}
