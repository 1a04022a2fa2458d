package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
	"github.com/shynome/rtcsession/transport"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	messages chan transport.Message
	closes   chan transport.StatusCode
	failures chan error
	pongs    chan []byte
}

func newRecorder() *recorder {
	return &recorder{
		messages: make(chan transport.Message, 4),
		closes:   make(chan transport.StatusCode, 1),
		failures: make(chan error, 1),
		pongs:    make(chan []byte, 1),
	}
}

func (r *recorder) HandleClose(code int, reason string) {
	r.closes <- transport.DecodeStatusCode(code)
}
func (r *recorder) HandleFailure(err error) { r.failures <- err }
func (r *recorder) HandleMessage(t transport.MessageType, data []byte) {
	r.messages <- transport.Message{Type: t, Data: data}
}
func (r *recorder) HandlePong(data []byte) { r.pongs <- data }

func TestHub(t *testing.T) {
	hub := NewHub()
	s1, s2 := NewServer(), NewServer()
	hub.Register("s1", s1)
	hub.Register("s2", s2)
	assert.Equal(hub.Find("s1"), s1)
	assert.Equal(hub.Find("s2"), s2)
	assert.That(hub.Find("s3") == nil)

	_, err := NewDialer(hub, "s3").Dial(context.Background())
	require.Error(t, err)
	// s1 does not accept yet
	_, err = NewDialer(hub, "s1").Dial(context.Background())
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	try.To1(s1.Accept())
	_, err = NewDialer(hub, "s1").Dial(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSession(t *testing.T) {
	hub := NewHub()
	server := NewServer()
	hub.Register("s", server)
	sessions := try.To1(server.Accept())

	conn := try.To1(NewDialer(hub, "s").Dial(context.Background()))
	session := <-sessions
	r := newRecorder()
	listening := make(chan struct{})
	go func() {
		defer close(listening)
		conn.Listen(r)
	}()

	try.To(conn.Send(transport.Text("hello")))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg := try.To1(session.Recv(ctx))
	assert.Equal(string(msg.Data), "hello")

	try.To(session.Send(transport.Binary([]byte{1, 2})))
	got := <-r.messages
	assert.Equal(got.Type, transport.BinaryMessage)

	try.To(conn.Ping([]byte("p")))
	assert.Equal(string(<-r.pongs), "p")

	try.To(session.Close(transport.StatusGoingAway, "restart"))
	assert.Equal(<-r.closes, transport.StatusGoingAway)
	<-listening
	assert.Equal(session.CloseCode(), transport.StatusGoingAway)
	require.Error(t, conn.Send(transport.Text("late")))
	_, err := session.Recv(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestSessionFail(t *testing.T) {
	hub := NewHub()
	server := NewServer()
	hub.Register("s", server)
	sessions := try.To1(server.Accept())

	conn := try.To1(NewDialer(hub, "s").Dial(context.Background()))
	session := <-sessions
	r := newRecorder()
	go conn.Listen(r)

	cause := errors.New("reset")
	try.To(session.Fail(cause))
	assert.Equal(<-r.failures, cause)
	assert.Equal(session.CloseCode(), transport.StatusAbnormalClosure)

	try.To(server.Close())
	_, err := NewDialer(hub, "s").Dial(context.Background())
	require.Error(t, err)
}
