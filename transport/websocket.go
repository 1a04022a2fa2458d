package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketDialer opens gorilla websocket connections.
type WebSocketDialer struct {
	url          string
	dialer       *websocket.Dialer
	headers      http.Header
	writeTimeout time.Duration
	compression  bool
}

var _ Dialer = (*WebSocketDialer)(nil)

type WebSocketOption func(*WebSocketDialer)

func WithHeaders(headers http.Header) WebSocketOption {
	return func(d *WebSocketDialer) {
		if headers != nil {
			d.headers = headers
		}
	}
}

func WithHandshakeTimeout(timeout time.Duration) WebSocketOption {
	return func(d *WebSocketDialer) {
		dialer := *d.dialer
		dialer.HandshakeTimeout = timeout
		d.dialer = &dialer
	}
}

func WithWriteTimeout(timeout time.Duration) WebSocketOption {
	return func(d *WebSocketDialer) {
		d.writeTimeout = timeout
	}
}

func WithCompression(enabled bool) WebSocketOption {
	return func(d *WebSocketDialer) {
		d.compression = enabled
	}
}

func NewWebSocketDialer(url string, opts ...WebSocketOption) *WebSocketDialer {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	d := &WebSocketDialer{
		url:          url,
		dialer:       &dialer,
		headers:      make(http.Header),
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := *d.dialer
	dialer.EnableCompression = d.compression
	conn, _, err := dialer.DialContext(ctx, d.url, d.headers)
	if err != nil {
		return nil, err
	}
	return &webSocketConn{conn: conn, writeTimeout: d.writeTimeout}, nil
}

type webSocketConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	writeL sync.Mutex
}

func (c *webSocketConn) Listen(h NativeHandler) {
	c.conn.SetPongHandler(func(data string) error {
		h.HandlePong([]byte(data))
		return nil
	})
	for {
		t, data, err := c.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				h.HandleClose(closeErr.Code, closeErr.Text)
				return
			}
			h.HandleFailure(err)
			return
		}
		h.HandleMessage(MessageType(t), data)
	}
}

func (c *webSocketConn) deadline() time.Time {
	if c.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.writeTimeout)
}

func (c *webSocketConn) Send(msg Message) error {
	c.writeL.Lock()
	defer c.writeL.Unlock()
	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(msg.Type), msg.Data)
}

func (c *webSocketConn) Ping(data []byte) error {
	deadline := c.deadline()
	if deadline.IsZero() {
		deadline = time.Now().Add(time.Second)
	}
	return c.conn.WriteControl(websocket.PingMessage, data, deadline)
}

func (c *webSocketConn) Close(code StatusCode, reason string) error {
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code.Code(), reason),
		time.Now().Add(time.Second),
	)
	if cerr := c.conn.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		err = nil
	}
	return err
}
