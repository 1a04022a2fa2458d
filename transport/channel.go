package transport

import "context"

// Channel is a single bidirectional socket connection driven as a small
// state machine. Alternate socket backends plug in below it through
// Dialer; test doubles can implement it directly.
type Channel interface {
	// Connect starts opening the socket and returns immediately.
	// onComplete runs exactly once: with nil once the socket is open,
	// or with the error that ended the attempt.
	Connect(onComplete func(err error))
	// Disconnect tears the channel down. It is idempotent and never
	// fails. A non-nil err is reported through OnFailure.
	Disconnect(err error)
	// Send writes msg to the socket. It returns ErrNotConnected unless
	// the channel is connected. There is no queueing.
	Send(msg Message) error
	State() State

	Handlers() Handlers
	SetHandlers(h Handlers)
	// InternalHandlers are reserved for the library's own wiring and
	// always run before the public ones.
	InternalHandlers() Handlers
	SetInternalHandlers(h Handlers)
}

type Handlers struct {
	// OnDisconnect runs once the channel reached StateDisconnected,
	// with the error that caused it or nil for a clean close.
	OnDisconnect func(err error)
	OnFailure    func(err error)
	OnPong       func(data []byte)
	OnMessage    func(msg Message)
}

// Dialer opens native sockets for a Socket.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is an open native socket.
type Conn interface {
	// Listen delivers native events to h until the socket is closed.
	// It is called once, right after the socket has been accepted as
	// open.
	Listen(h NativeHandler)
	Send(msg Message) error
	Ping(data []byte) error
	Close(code StatusCode, reason string) error
}

// NativeHandler receives the events of a native socket.
type NativeHandler interface {
	HandleClose(code int, reason string)
	HandleFailure(err error)
	HandleMessage(t MessageType, data []byte)
	HandlePong(data []byte)
}
