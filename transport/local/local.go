// Package local is an in-process transport backend. Servers register on
// a Hub under an endpoint name; a Dialer connects a transport.Socket to
// one of them and the server gets the other end as a Session.
package local

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/shynome/rtcsession/transport"
)

type Hub struct {
	pool  map[string]*Server
	poolL *sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		pool:  make(map[string]*Server),
		poolL: &sync.RWMutex{},
	}
}

func (hub *Hub) Register(endpoint string, server *Server) {
	if endpoint == "" || server == nil {
		return
	}
	hub.poolL.Lock()
	defer hub.poolL.Unlock()
	hub.pool[endpoint] = server
}

func (hub *Hub) Find(endpoint string) *Server {
	hub.poolL.RLock()
	defer hub.poolL.RUnlock()
	return hub.pool[endpoint]
}

type Server struct {
	mu sync.Mutex
	ch chan *Session
}

func NewServer() *Server {
	return &Server{}
}

func (s *Server) Accept() (ch <-chan *Session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		s.ch = make(chan *Session, 16)
	}
	return s.ch, nil
}

func (s *Server) offer(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return fmt.Errorf("server is not ready accept")
	}
	select {
	case s.ch <- session:
		return nil
	default:
		return fmt.Errorf("server accept backlog is full")
	}
}

func (s *Server) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch := s.ch; ch != nil {
		s.ch = nil
		close(ch)
	}
	return
}

// Dialer connects to the server registered as endpoint on hub.
type Dialer struct {
	hub      *Hub
	endpoint string
}

var _ transport.Dialer = (*Dialer)(nil)

func NewDialer(hub *Hub, endpoint string) *Dialer {
	return &Dialer{hub: hub, endpoint: endpoint}
}

func (d *Dialer) Dial(ctx context.Context) (transport.Conn, error) {
	server := d.hub.Find(d.endpoint)
	if server == nil {
		return nil, fmt.Errorf("server is not found. ep: %s", d.endpoint)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	session := newSession()
	if err := server.offer(session); err != nil {
		return nil, err
	}
	return &conn{session: session}, nil
}

var ErrClosed = errors.New("local: session closed")

// Session is the server side of one connection.
type Session struct {
	inbox chan transport.Message
	ready chan struct{}
	done  chan struct{}

	mu        sync.Mutex
	handler   transport.NativeHandler
	closeL    sync.Once
	closeCode transport.StatusCode
}

func newSession() *Session {
	return &Session{
		inbox: make(chan transport.Message, 16),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Done is closed once either side closed the session.
func (s *Session) Done() <-chan struct{} { return s.done }

// CloseCode is the code the client closed the session with, valid
// after Done.
func (s *Session) CloseCode() transport.StatusCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode
}

// Recv returns the next message sent by the client.
// Messages sent before the session closed are still returned.
func (s *Session) Recv(ctx context.Context) (transport.Message, error) {
	select {
	case msg := <-s.inbox:
		return msg, nil
	case <-s.done:
		select {
		case msg := <-s.inbox:
			return msg, nil
		default:
			return transport.Message{}, ErrClosed
		}
	case <-ctx.Done():
		return transport.Message{}, ctx.Err()
	}
}

// native waits until the client listens and returns its handler.
func (s *Session) native() (transport.NativeHandler, error) {
	select {
	case <-s.ready:
	case <-s.done:
		return nil, ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler, nil
}

func (s *Session) Send(msg transport.Message) error {
	h, err := s.native()
	if err != nil {
		return err
	}
	h.HandleMessage(msg.Type, msg.Data)
	return nil
}

// SendRaw delivers a frame of any type, including ones the client
// must discard.
func (s *Session) SendRaw(t transport.MessageType, data []byte) error {
	h, err := s.native()
	if err != nil {
		return err
	}
	h.HandleMessage(t, data)
	return nil
}

func (s *Session) Pong(data []byte) error {
	h, err := s.native()
	if err != nil {
		return err
	}
	h.HandlePong(data)
	return nil
}

// Close closes the session from the server side with code.
func (s *Session) Close(code transport.StatusCode, reason string) error {
	h, err := s.native()
	if err != nil {
		return err
	}
	s.finish(code)
	h.HandleClose(code.Code(), reason)
	return nil
}

// Fail breaks the session as a native socket failure would.
func (s *Session) Fail(cause error) error {
	h, err := s.native()
	if err != nil {
		return err
	}
	s.finish(transport.StatusAbnormalClosure)
	h.HandleFailure(cause)
	return nil
}

func (s *Session) finish(code transport.StatusCode) {
	s.closeL.Do(func() {
		s.mu.Lock()
		s.closeCode = code
		s.mu.Unlock()
		close(s.done)
	})
}

type conn struct {
	session *Session
	readyL  sync.Once
}

func (c *conn) Listen(h transport.NativeHandler) {
	c.readyL.Do(func() {
		c.session.mu.Lock()
		c.session.handler = h
		c.session.mu.Unlock()
		close(c.session.ready)
	})
	<-c.session.done
}

func (c *conn) Send(msg transport.Message) error {
	select {
	case <-c.session.done:
		return net.ErrClosed
	default:
	}
	select {
	case c.session.inbox <- msg:
		return nil
	case <-c.session.done:
		return net.ErrClosed
	}
}

func (c *conn) Ping(data []byte) error {
	select {
	case <-c.session.done:
		return net.ErrClosed
	case <-c.session.ready:
	}
	c.session.mu.Lock()
	h := c.session.handler
	c.session.mu.Unlock()
	go h.HandlePong(data)
	return nil
}

func (c *conn) Close(code transport.StatusCode, reason string) error {
	c.session.finish(code)
	return nil
}
