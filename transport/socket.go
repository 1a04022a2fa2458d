package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shynome/rtcsession/internal/serial"
	"golang.zx2c4.com/wireguard/device"
)

// Socket implements Channel on top of a Dialer.
type Socket struct {
	dialer       Dialer
	logger       *device.Logger
	pingInterval time.Duration

	mu        sync.Mutex
	state     State
	used      bool
	conn      Conn
	onConnect func(err error)
	cancel    context.CancelFunc
	internal  Handlers
	public    Handlers

	events serial.Queue
}

var _ Channel = (*Socket)(nil)

type SocketOption func(*Socket)

func WithLogger(logger *device.Logger) SocketOption {
	return func(s *Socket) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPingInterval pings the remote side while connected. Pongs are
// reported through OnPong.
func WithPingInterval(d time.Duration) SocketOption {
	return func(s *Socket) {
		s.pingInterval = d
	}
}

func NewSocket(dialer Dialer, opts ...SocketOption) *Socket {
	s := &Socket{
		dialer: dialer,
		logger: device.NewLogger(device.LogLevelError, "transport: "),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Socket) Handlers() Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.public
}

func (s *Socket) SetHandlers(h Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.public = h
}

func (s *Socket) InternalHandlers() Handlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.internal
}

func (s *Socket) SetInternalHandlers(h Handlers) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.internal = h
}

func (s *Socket) Connect(onComplete func(err error)) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		if onComplete != nil {
			s.events.Go(func() { onComplete(ErrChannelClosed) })
		}
		return
	}
	s.used = true
	s.state = StateConnecting
	s.onConnect = onComplete
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Verbosef("connecting")
	go s.dial(ctx)
}

func (s *Socket) dial(ctx context.Context) {
	conn, err := s.dialer.Dial(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Errorf("dial failed: %v", err)
		s.Disconnect(&FailureError{Err: err})
		return
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// lost the race against Disconnect
		s.mu.Unlock()
		conn.Close(StatusNormalClosure, "")
		return
	}
	s.conn = conn
	s.state = StateConnected
	onConnect := s.onConnect
	s.onConnect = nil
	s.mu.Unlock()

	s.logger.Verbosef("connected")
	if onConnect != nil {
		s.events.Go(func() { onConnect(nil) })
	}
	go conn.Listen(native{s})
	if s.pingInterval > 0 {
		go s.keepalive(ctx, conn)
	}
}

func (s *Socket) keepalive(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := conn.Ping(nil); err != nil {
			if errors.Is(err, ErrUnsupported) {
				return
			}
			s.Disconnect(&FailureError{Err: err})
			return
		}
	}
}

func (s *Socket) Disconnect(err error) {
	s.mu.Lock()
	if s.state.IsClosing() {
		s.mu.Unlock()
		return
	}
	onConnect := s.onConnect
	s.onConnect = nil
	s.state = StateDisconnecting
	conn, cancel := s.conn, s.cancel
	s.mu.Unlock()

	if onConnect != nil {
		cause := err
		if cause == nil {
			cause = ErrCanceled
		}
		s.events.Go(func() { onConnect(cause) })
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		if cerr := conn.Close(StatusNormalClosure, ""); cerr != nil {
			s.logger.Verbosef("close: %v", cerr)
		}
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.mu.Unlock()

	if err != nil {
		s.logger.Errorf("disconnected: %v", err)
		s.fire(false, func(h Handlers) {
			if h.OnFailure != nil {
				h.OnFailure(err)
			}
		})
	} else {
		s.logger.Verbosef("disconnected")
	}
	s.fire(false, func(h Handlers) {
		if h.OnDisconnect != nil {
			h.OnDisconnect(err)
		}
	})
}

func (s *Socket) Send(msg Message) error {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	s.mu.Unlock()
	return conn.Send(msg)
}

// fire runs call with the internal then the public handlers on the
// event queue. With live set, the event is dropped if the socket is no
// longer connected by the time it is dispatched.
func (s *Socket) fire(live bool, call func(h Handlers)) {
	s.events.Go(func() {
		s.mu.Lock()
		if live && s.state != StateConnected {
			s.mu.Unlock()
			return
		}
		internal, public := s.internal, s.public
		s.mu.Unlock()
		call(internal)
		call(public)
	})
}

// fireLive queues a non-terminal event unless the socket already left
// StateConnected.
func (s *Socket) fireLive(call func(h Handlers)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected {
		return
	}
	s.fire(true, call)
}

type native struct{ s *Socket }

var _ NativeHandler = native{}

func (n native) HandleClose(code int, reason string) {
	if StatusCode(code) == StatusNormalClosure {
		n.s.Disconnect(nil)
		return
	}
	n.s.Disconnect(&Error{StatusCode: DecodeStatusCode(code), Reason: reason})
}

func (n native) HandleFailure(err error) {
	var ferr *FailureError
	if !errors.As(err, &ferr) {
		err = &FailureError{Err: err}
	}
	n.s.Disconnect(err)
}

func (n native) HandleMessage(t MessageType, data []byte) {
	msg, ok := classify(t, data)
	if !ok {
		return
	}
	n.s.fireLive(func(h Handlers) {
		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	})
}

func (n native) HandlePong(data []byte) {
	n.s.fireLive(func(h Handlers) {
		if h.OnPong != nil {
			h.OnPong(data)
		}
	})
}
