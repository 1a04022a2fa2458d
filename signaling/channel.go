// Package signaling exchanges session negotiation messages with the
// server over a transport.Channel. Messages are JSON objects carried in
// text frames and discriminated by their "type" field.
package signaling

import (
	"net/http"
	"sync"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/rtcsession/internal/serial"
	"github.com/shynome/rtcsession/transport"
	"golang.zx2c4.com/wireguard/device"
)

type State = transport.State

type Handlers struct {
	OnDisconnect func(err error)
	OnReceive    func(msg Message)
}

// Channel owns a transport channel and speaks the signaling protocol on
// it. Its lifetime is tied to the transport: either one going down takes
// the other with it.
type Channel struct {
	transport transport.Channel
	logger    *device.Logger

	mu        sync.Mutex
	state     State
	used      bool
	onConnect func(err error)
	internal  Handlers
	public    Handlers

	events serial.Queue
}

type Option func(*Channel)

func WithLogger(logger *device.Logger) Option {
	return func(c *Channel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(t transport.Channel, opts ...Option) *Channel {
	c := &Channel{
		transport: t,
		logger:    device.NewLogger(device.LogLevelError, "signaling: "),
	}
	for _, opt := range opts {
		opt(c)
	}
	t.SetInternalHandlers(transport.Handlers{
		OnDisconnect: c.Disconnect,
		OnMessage:    c.receive,
	})
	return c
}

func (c *Channel) Transport() transport.Channel { return c.transport }

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) Handlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.public
}

func (c *Channel) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.public = h
}

func (c *Channel) InternalHandlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal
}

func (c *Channel) SetInternalHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.internal = h
}

// Connect opens the transport. onComplete runs exactly once.
func (c *Channel) Connect(onComplete func(err error)) {
	c.mu.Lock()
	if c.used {
		c.mu.Unlock()
		if onComplete != nil {
			c.events.Go(func() { onComplete(transport.ErrChannelClosed) })
		}
		return
	}
	c.used = true
	c.state = transport.StateConnecting
	c.onConnect = onComplete
	c.mu.Unlock()

	c.transport.Connect(func(err error) {
		if err != nil {
			c.Disconnect(err)
			return
		}
		c.mu.Lock()
		if c.state != transport.StateConnecting {
			c.mu.Unlock()
			return
		}
		c.state = transport.StateConnected
		onConnect := c.onConnect
		c.onConnect = nil
		c.mu.Unlock()

		c.logger.Verbosef("connected")
		if onConnect != nil {
			c.events.Go(func() { onConnect(nil) })
		}
	})
}

// Disconnect is idempotent and tears the transport down with err.
func (c *Channel) Disconnect(err error) {
	c.mu.Lock()
	if c.state.IsClosing() {
		c.mu.Unlock()
		return
	}
	onConnect := c.onConnect
	c.onConnect = nil
	c.state = transport.StateDisconnecting
	c.mu.Unlock()

	if onConnect != nil {
		cause := err
		if cause == nil {
			cause = transport.ErrCanceled
		}
		c.events.Go(func() { onConnect(cause) })
	}
	c.transport.Disconnect(err)

	c.mu.Lock()
	c.state = transport.StateDisconnected
	c.mu.Unlock()

	if err != nil {
		c.logger.Errorf("disconnected: %v", err)
	} else {
		c.logger.Verbosef("disconnected")
	}
	c.events.Go(func() {
		internal, public := c.handlers()
		if internal.OnDisconnect != nil {
			internal.OnDisconnect(err)
		}
		if public.OnDisconnect != nil {
			public.OnDisconnect(err)
		}
	})
}

func (c *Channel) handlers() (internal, public Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal, c.public
}

// Send encodes msg and writes it to the transport.
func (c *Channel) Send(msg Message) (err error) {
	defer err2.Handle(&err)
	if c.State() != transport.StateConnected {
		return transport.ErrNotConnected
	}
	data := try.To1(Encode(msg))
	c.logger.Verbosef("send %s", msg.Type())
	try.To(c.transport.Send(transport.Text(string(data))))
	return
}

func (c *Channel) receive(raw transport.Message) {
	msg, err := Decode(raw.Data)
	if err != nil {
		c.logger.Errorf("drop message: %v", err)
		return
	}
	c.logger.Verbosef("recv %s", msg.Type())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != transport.StateConnected {
		return
	}
	c.events.Go(func() {
		c.mu.Lock()
		if c.state != transport.StateConnected {
			c.mu.Unlock()
			return
		}
		internal, public := c.internal, c.public
		c.mu.Unlock()
		if internal.OnReceive != nil {
			internal.OnReceive(msg)
		}
		if public.OnReceive != nil {
			public.OnReceive(msg)
		}
	})
}

// Dial builds a channel whose transport is chosen by the scheme of
// rawURL: ws and wss use WebSocket, http and https use EventSource.
func Dial(rawURL string, headers http.Header, opts ...Option) (*Channel, error) {
	t, err := transport.New(rawURL, headers)
	if err != nil {
		return nil, err
	}
	return New(t, opts...), nil
}
