package signaling_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lainio/err2/try"
	"github.com/shynome/rtcsession/signaling"
	"github.com/shynome/rtcsession/transport"
	"github.com/shynome/rtcsession/transport/local"
	"github.com/stretchr/testify/require"
)

type events struct {
	mu   sync.Mutex
	list []string
	errs []error
	msgs []signaling.Message
	ch   chan string
}

func newEvents() *events { return &events{ch: make(chan string, 32)} }

func (e *events) add(name string, err error, msg signaling.Message) {
	e.mu.Lock()
	e.list = append(e.list, name)
	if err != nil {
		e.errs = append(e.errs, err)
	}
	if msg != nil {
		e.msgs = append(e.msgs, msg)
	}
	e.mu.Unlock()
	e.ch <- name
}

func (e *events) handlers(side string) signaling.Handlers {
	return signaling.Handlers{
		OnDisconnect: func(err error) { e.add(side+":disconnect", err, nil) },
		OnReceive:    func(msg signaling.Message) { e.add(side+":receive", nil, msg) },
	}
}

func (e *events) wait(t *testing.T, name string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case got := <-e.ch:
			if got == name {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", name)
		}
	}
}

func setup(t *testing.T) (*signaling.Channel, *local.Session, *events) {
	hub := local.NewHub()
	server := local.NewServer()
	hub.Register("sora", server)
	sessions := try.To1(server.Accept())
	t.Cleanup(func() { server.Close() })

	ch := signaling.New(transport.NewSocket(local.NewDialer(hub, "sora")))
	ev := newEvents()
	ch.SetInternalHandlers(ev.handlers("internal"))
	ch.SetHandlers(ev.handlers("public"))

	done := make(chan error, 1)
	ch.Connect(func(err error) { done <- err })
	require.NoError(t, <-done)
	require.Equal(t, transport.StateConnected, ch.State())
	return ch, <-sessions, ev
}

func TestChannelSendReceive(t *testing.T) {
	ch, session, ev := setup(t)

	try.To(ch.Send(&signaling.Connect{Role: signaling.RoleRecvonly, ChannelID: "room"}))
	raw := try.To1(session.Recv(context.Background()))
	var got map[string]any
	try.To(json.Unmarshal(raw.Data, &got))
	require.Equal(t, "connect", got["type"])
	require.Equal(t, "room", got["channel_id"])

	try.To(session.Send(transport.Text(`garbage`)))
	try.To(session.Send(transport.Text(`{"type":"offer","sdp":"v=0","client_id":"abc"}`)))
	ev.wait(t, "public:receive")

	ev.mu.Lock()
	defer ev.mu.Unlock()
	require.Equal(t, []string{"internal:receive", "public:receive"}, ev.list)
	offer, ok := ev.msgs[0].(*signaling.Offer)
	require.True(t, ok)
	require.Equal(t, "abc", offer.ClientID)
	require.Same(t, ev.msgs[0], ev.msgs[1])
}

func TestChannelTransportFailureCascades(t *testing.T) {
	ch, session, ev := setup(t)

	try.To(session.Close(transport.StatusPolicyViolation, "kicked"))
	ev.wait(t, "public:disconnect")

	require.Equal(t, transport.StateDisconnected, ch.State())
	require.Equal(t, transport.StateDisconnected, ch.Transport().State())
	var terr *transport.Error
	require.True(t, errors.As(ev.errs[0], &terr))
	require.Equal(t, transport.StatusPolicyViolation, terr.StatusCode)
	require.Same(t, ev.errs[0], ev.errs[1])
	require.ErrorIs(t, ch.Send(&signaling.Pong{}), transport.ErrNotConnected)
}

func TestChannelDisconnect(t *testing.T) {
	ch, session, ev := setup(t)

	ch.Disconnect(nil)
	ch.Disconnect(nil)
	ev.wait(t, "public:disconnect")
	<-session.Done()

	time.Sleep(50 * time.Millisecond)
	ev.mu.Lock()
	defer ev.mu.Unlock()
	require.Equal(t, []string{"internal:disconnect", "public:disconnect"}, ev.list)
	require.Empty(t, ev.errs)
	require.Equal(t, transport.StateDisconnected, ch.Transport().State())
}

func TestDial(t *testing.T) {
	_, err := signaling.Dial("ftp://127.0.0.1/", nil)
	require.Error(t, err)

	ch := try.To1(signaling.Dial("wss://127.0.0.1/signaling", nil))
	_, ok := ch.Transport().(*transport.Socket)
	require.True(t, ok)
	require.Equal(t, transport.StateDisconnected, ch.State())
}
