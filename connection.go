// Package rtcsession brings up a media session made of three channels,
// transport, signaling and peer, and reports it to the application as a
// single connection with one state and one set of handlers.
package rtcsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/rtcsession/internal/serial"
	"github.com/shynome/rtcsession/monitor"
	"github.com/shynome/rtcsession/peer"
	"github.com/shynome/rtcsession/signaling"
	"github.com/shynome/rtcsession/transport"
	"golang.zx2c4.com/wireguard/device"
)

type (
	State    = transport.State
	Handlers = peer.Handlers
)

const (
	StateDisconnected  = transport.StateDisconnected
	StateConnecting    = transport.StateConnecting
	StateConnected     = transport.StateConnected
	StateDisconnecting = transport.StateDisconnecting
)

const DefaultTimeout = 30 * time.Second

// Connection is one session attempt. It is single use: once it is back
// in StateDisconnected a new Connection is needed.
type Connection struct {
	id       string
	config   Config
	sig      *signaling.Channel
	peer     peer.Channel
	logger   *device.Logger
	onChange func(State)

	mu          sync.Mutex
	state       State
	used        bool
	pending     bool
	completion  func(err error)
	task        *Task
	monitor     *monitor.Monitor
	startTime   time.Time
	publishers  int
	subscribers int
	hasPub      bool
	hasSub      bool
	internal    Handlers
	public      Handlers

	events serial.Queue
}

type options struct {
	transport transport.Channel
	newPeer   func(sig *signaling.Channel) peer.Channel
	logger    *device.Logger
	onChange  func(State)
}

type Option func(*options)

// WithTransport replaces the transport built from Config.URL.
func WithTransport(t transport.Channel) Option {
	return func(o *options) { o.transport = t }
}

// WithPeer replaces the WebRTC peer channel.
func WithPeer(newPeer func(sig *signaling.Channel) peer.Channel) Option {
	return func(o *options) { o.newPeer = newPeer }
}

func WithLogger(logger *device.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStateChange observes every state transition, in order.
func WithStateChange(fn func(State)) Option {
	return func(o *options) { o.onChange = fn }
}

func New(config Config, opts ...Option) (c *Connection, err error) {
	defer err2.Handle(&err)

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	try.To(config.validate(o.transport == nil))

	c = &Connection{
		id:       uuid.NewString(),
		config:   config,
		logger:   o.logger,
		onChange: o.onChange,
	}
	if c.logger == nil {
		c.logger = device.NewLogger(device.LogLevelError, fmt.Sprintf("rtcsession(%s): ", c.id[:8]))
	}

	t := o.transport
	if t == nil {
		t = try.To1(transport.New(config.URL, config.Header, transport.WithLogger(c.logger)))
	}
	c.sig = signaling.New(t, signaling.WithLogger(c.logger))
	if o.newPeer != nil {
		c.peer = o.newPeer(c.sig)
	} else {
		c.peer = peer.NewWebRTC(c.sig, peer.Config{
			ChannelID:   config.ChannelID,
			Role:        config.Role,
			ClientID:    config.ClientID,
			Metadata:    config.Metadata,
			Multistream: config.Multistream,
		}, peer.WithLogger(c.logger))
	}
	return c, nil
}

func (c *Connection) ID() string                    { return c.id }
func (c *Connection) Config() Config                { return c.config }
func (c *Connection) Signaling() *signaling.Channel { return c.sig }
func (c *Connection) Peer() peer.Channel            { return c.peer }
func (c *Connection) ClientID() string              { return c.peer.ClientID() }
func (c *Connection) Streams() []*peer.Stream       { return c.peer.Streams() }

// MainStream is the first remote stream, nil when there is none.
func (c *Connection) MainStream() *peer.Stream {
	if streams := c.peer.Streams(); len(streams) > 0 {
		return streams[0]
	}
	return nil
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) IsAvailable() bool { return c.State() == StateConnected }

// ConnectionStartTime is set while an attempt is running or connected.
func (c *Connection) ConnectionStartTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startTime, !c.startTime.IsZero()
}

func (c *Connection) ConnectionTime() (time.Duration, bool) {
	start, ok := c.ConnectionStartTime()
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

func (c *Connection) PublisherCount() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publishers, c.hasPub
}

func (c *Connection) SubscriberCount() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribers, c.hasSub
}

// ConnectionCount is known only when both counts are.
func (c *Connection) ConnectionCount() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasPub || !c.hasSub {
		return 0, false
	}
	return c.publishers + c.subscribers, true
}

func (c *Connection) Handlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.public
}

func (c *Connection) SetHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.public = h
}

func (c *Connection) InternalHandlers() Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal
}

func (c *Connection) SetInternalHandlers(h Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.internal = h
}

// setState must be called with c.mu held.
func (c *Connection) setState(s State) {
	c.state = s
	if fn := c.onChange; fn != nil {
		c.events.Go(func() { fn(s) })
	}
}

// Connect starts a session attempt and returns at once. completion runs
// exactly once with the outcome. A Connection that is connecting or
// connected rejects the call with ErrConnectionBusy before returning.
func (c *Connection) Connect(opts peer.Options, timeout time.Duration, completion func(err error)) *Task {
	task := newTask(c)

	c.mu.Lock()
	var reject error
	switch {
	case c.state.IsActive():
		reject = ErrConnectionBusy
	case c.used:
		reject = ErrConnectionClosed
	}
	if reject != nil {
		c.mu.Unlock()
		c.logger.Verbosef("connect rejected: %v", reject)
		if completion != nil {
			completion(reject)
		}
		task.finish(reject)
		return task
	}
	c.used = true
	c.pending = true
	c.completion = completion
	c.task = task
	c.startTime = time.Now()
	c.setState(StateConnecting)
	c.mu.Unlock()

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	go c.attempt(opts, timeout)
	return task
}

func (c *Connection) attempt(opts peer.Options, timeout time.Duration) {
	c.peer.SetInternalHandlers(peer.Handlers{
		OnDisconnect: c.handlePeerDisconnect,
		OnAddStream: func(s *peer.Stream) {
			c.fire(true, func(h Handlers) {
				if h.OnAddStream != nil {
					h.OnAddStream(s)
				}
			})
		},
		OnRemoveStream: func(s *peer.Stream) {
			c.fire(true, func(h Handlers) {
				if h.OnRemoveStream != nil {
					h.OnRemoveStream(s)
				}
			})
		},
		OnReceiveSignaling: func(msg signaling.Message) {
			if n, ok := msg.(*signaling.NotifyConnection); ok {
				c.updateCounts(n)
			}
			c.fire(true, func(h Handlers) {
				if h.OnReceiveSignaling != nil {
					h.OnReceiveSignaling(msg)
				}
			})
		},
	})

	pending := func(state func() State) func() bool {
		return func() bool { return state() != StateConnected }
	}
	m := monitor.New(timeout,
		monitor.Target{Name: "transport", Pending: pending(c.sig.Transport().State)},
		monitor.Target{Name: "signaling", Pending: pending(c.sig.State)},
		monitor.Target{Name: "peer", Pending: pending(c.peer.State)},
		monitor.Target{Name: "outcome", Pending: c.outcomePending},
	)
	m.SetLogger(c.logger)

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.monitor = m
	c.mu.Unlock()

	m.Run(func() { c.Disconnect(ErrConnectionTimeout) })
	c.logger.Verbosef("connecting to channel %s", c.config.ChannelID)
	c.peer.Connect(opts, c.handlePeerComplete)

	// a Disconnect that ran before the peer started found nothing to stop
	if c.State().IsClosing() {
		c.peer.Disconnect(ErrConnectionCanceled)
	}
}

// updateCounts records the channel counts. Notifications seen while not
// connected are ignored.
func (c *Connection) updateCounts(n *signaling.NotifyConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return
	}
	if n.PublisherCount != nil {
		c.publishers, c.hasPub = *n.PublisherCount, true
	}
	if n.SubscriberCount != nil {
		c.subscribers, c.hasSub = *n.SubscriberCount, true
	}
}

// outcomePending holds until the peer reported how the connect ended,
// whatever state the sub-channels claim.
func (c *Connection) outcomePending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Connection) handlePeerComplete(err error) {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return
	}
	c.pending = false
	completion, task, m := c.completion, c.task, c.monitor
	c.completion = nil
	if err == nil {
		c.setState(StateConnected)
	}
	c.mu.Unlock()

	m.Stop()
	if err != nil {
		c.Disconnect(err)
	} else {
		c.logger.Verbosef("connected as %s", c.peer.ClientID())
	}
	c.deliver(err, completion, task)
}

// handlePeerDisconnect follows the peer down. The task is completed by
// whichever path delivers the connect outcome.
func (c *Connection) handlePeerDisconnect(err error) {
	if c.State().IsActive() {
		c.Disconnect(err)
	}
}

// Disconnect ends the session. It is idempotent and safe to call from
// any handler. A connect still in flight completes with err, or with
// ErrConnectionCanceled when err is nil.
func (c *Connection) Disconnect(err error) {
	c.mu.Lock()
	if c.state.IsClosing() {
		c.mu.Unlock()
		return
	}
	pending := c.pending
	c.pending = false
	completion, task, m := c.completion, c.task, c.monitor
	c.completion = nil
	c.setState(StateDisconnecting)
	c.mu.Unlock()

	m.Stop()
	c.peer.Disconnect(err)

	c.mu.Lock()
	c.startTime = time.Time{}
	c.setState(StateDisconnected)
	c.mu.Unlock()

	if err != nil {
		c.logger.Errorf("disconnected: %v", err)
	} else {
		c.logger.Verbosef("disconnected")
	}
	c.fire(false, func(h Handlers) {
		if h.OnDisconnect != nil {
			h.OnDisconnect(err)
		}
	})
	if pending {
		cause := err
		if cause == nil {
			cause = ErrConnectionCanceled
		}
		c.deliver(cause, completion, task)
	}
}

// deliver reports the connect outcome: OnConnect, then completion, then
// the task.
func (c *Connection) deliver(err error, completion func(error), task *Task) {
	c.fire(false, func(h Handlers) {
		if h.OnConnect != nil {
			h.OnConnect(err)
		}
	})
	c.events.Go(func() {
		if completion != nil {
			completion(err)
		}
		if task != nil {
			task.finish(err)
		}
	})
}

// fire queues call with the handler snapshot taken at dispatch. A live
// event is dropped once the connection is no longer active.
func (c *Connection) fire(live bool, call func(h Handlers)) {
	c.events.Go(func() {
		c.mu.Lock()
		if live && !c.state.IsActive() {
			c.mu.Unlock()
			return
		}
		internal, public := c.internal, c.public
		c.mu.Unlock()
		call(internal)
		call(public)
	})
}
