// Package transport turns a native bidirectional socket into a small
// state machine with a closed set of events.
//
// A Channel moves through StateConnecting, StateConnected,
// StateDisconnecting and StateDisconnected exactly once. Socket is the
// Channel implementation; it drives a Dialer backend: WebSocketDialer
// (gorilla/websocket), EventSourceDialer (server-sent events down, HTTP
// POST up) or local.Dialer (in process).
//
// Every event has an internal and a public handler. The internal one is
// for the library's own wiring and always runs first. Handlers of one
// Socket run one at a time, in the order the events happened.
package transport

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// New returns a Socket for rawURL, picking the backend from its scheme:
// ws and wss dial a websocket, http and https an event stream.
func New(rawURL string, headers http.Header, opts ...SocketOption) (s *Socket, err error) {
	defer err2.Handle(&err)
	u := try.To1(url.Parse(rawURL))
	switch u.Scheme {
	case "ws", "wss":
		dialer := NewWebSocketDialer(rawURL, WithHeaders(headers))
		return NewSocket(dialer, opts...), nil
	case "http", "https":
		dialer := try.To1(NewEventSourceDialer(rawURL, headers))
		return NewSocket(dialer, opts...), nil
	default:
		return nil, fmt.Errorf("transport: unsupported url scheme %q", u.Scheme)
	}
}
