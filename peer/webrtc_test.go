package peer_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/shynome/rtcsession/mux"
	"github.com/shynome/rtcsession/peer"
	"github.com/shynome/rtcsession/signaling"
	"github.com/shynome/rtcsession/transport"
	"github.com/shynome/rtcsession/transport/local"
	"github.com/stretchr/testify/require"
)

const wait = 15 * time.Second

type server struct {
	t        *testing.T
	sessions <-chan *local.Session
	session  *local.Session
}

func (s *server) accept() {
	select {
	case s.session = <-s.sessions:
	case <-time.After(wait):
		s.t.Fatal("no session")
	}
}

func (s *server) recv() signaling.Message {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	raw := try.To1(s.session.Recv(ctx))
	return try.To1(signaling.Decode(raw.Data))
}

func (s *server) send(msg signaling.Message) {
	data := try.To1(signaling.Encode(msg))
	try.To(s.session.Send(transport.Text(string(data))))
}

func setup(t *testing.T) (*peer.WebRTC, *server) {
	hub := local.NewHub()
	ls := local.NewServer()
	hub.Register("sora", ls)
	sessions := try.To1(ls.Accept())

	sig := signaling.New(transport.NewSocket(local.NewDialer(hub, "sora")))
	p := peer.NewWebRTC(sig, peer.Config{
		ChannelID: "room",
		Role:      signaling.RoleRecvonly,
		Metadata:  map[string]string{"token": "t"},
	})
	t.Cleanup(func() {
		p.Disconnect(nil)
		ls.Close()
	})
	return p, &server{t: t, sessions: sessions}
}

// offerer is the server's end of the media session. It sends one video
// track in stream "stream-a".
func offerer(ctx context.Context) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "stream-a")
	if err != nil {
		return nil, err
	}
	if _, err = pc.AddTrack(track); err != nil {
		return nil, err
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err = pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	<-gathered

	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				track.WriteSample(media.Sample{Data: []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}, Duration: 20 * time.Millisecond})
			}
		}
	}()
	return pc, nil
}

func TestWebRTCNegotiation(t *testing.T) {
	negotiate(t, peer.Options{})
}

func TestWebRTCSharedICEPort(t *testing.T) {
	if mux.WithUDPMux == nil {
		t.Skip("no udp mux on this platform")
	}
	// reserve a free port, then hand it to the mux
	pc := try.To1(net.ListenPacket("udp4", "127.0.0.1:0"))
	port := pc.LocalAddr().(*net.UDPAddr).Port
	try.To(pc.Close())
	negotiate(t, peer.Options{ICEPort: uint16(port)})
}

// negotiate runs a full offer/answer against the in-process server, then
// pings and disconnects.
func negotiate(t *testing.T, opts peer.Options) {
	p, srv := setup(t)

	added := make(chan *peer.Stream, 1)
	disconnected := make(chan error, 1)
	p.SetHandlers(peer.Handlers{
		OnAddStream:  func(s *peer.Stream) { added <- s },
		OnDisconnect: func(err error) { disconnected <- err },
	})

	connected := make(chan error, 1)
	p.Connect(opts, func(err error) { connected <- err })
	assert.Equal(p.State(), transport.StateConnecting)

	srv.accept()
	hello, ok := srv.recv().(*signaling.Connect)
	require.True(t, ok)
	assert.Equal(hello.ChannelID, "room")
	assert.Equal(hello.Role, signaling.RoleRecvonly)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pc := try.To1(offerer(ctx))
	defer pc.Close()
	srv.send(&signaling.Offer{SDP: pc.LocalDescription().SDP, ClientID: "client-1"})

	answer, ok := srv.recv().(*signaling.Answer)
	require.True(t, ok)
	try.To(pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}))

	select {
	case err := <-connected:
		require.NoError(t, err)
	case <-time.After(wait):
		t.Fatal("peer did not connect")
	}
	assert.Equal(p.State(), transport.StateConnected)
	assert.Equal(p.ClientID(), "client-1")

	select {
	case s := <-added:
		assert.Equal(s.ID(), "stream-a")
		assert.Equal(len(s.Tracks()), 1)
	case <-time.After(wait):
		t.Fatal("no stream")
	}
	assert.Equal(len(p.Streams()), 1)

	srv.send(&signaling.Ping{Stats: true})
	pong, ok := srv.recv().(*signaling.Pong)
	require.True(t, ok)
	assert.That(pong.Stats != nil)

	p.Disconnect(nil)
	_, ok = srv.recv().(*signaling.Disconnect)
	assert.That(ok)
	<-srv.session.Done()
	assert.Equal(srv.session.CloseCode(), transport.StatusNormalClosure)
	require.NoError(t, <-disconnected)
	assert.Equal(p.State(), transport.StateDisconnected)
}

func TestWebRTCSignalingClosed(t *testing.T) {
	p, srv := setup(t)

	disconnected := make(chan error, 1)
	p.SetHandlers(peer.Handlers{
		OnDisconnect: func(err error) { disconnected <- err },
	})
	connected := make(chan error, 1)
	p.Connect(peer.Options{}, func(err error) { connected <- err })

	srv.accept()
	_, ok := srv.recv().(*signaling.Connect)
	require.True(t, ok)
	try.To(srv.session.Close(transport.StatusInternalError, "boom"))

	err := <-connected
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(terr.StatusCode, transport.StatusInternalError)
	assert.Equal(terr.Reason, "boom")
	assert.Equal(<-disconnected, err)
	assert.Equal(p.State(), transport.StateDisconnected)

	again := make(chan error, 1)
	p.Connect(peer.Options{}, func(err error) { again <- err })
	assert.Equal(<-again, transport.ErrChannelClosed)
}

func TestWebRTCDisconnectWhileConnecting(t *testing.T) {
	p, srv := setup(t)

	connected := make(chan error, 1)
	p.Connect(peer.Options{}, func(err error) { connected <- err })
	srv.accept()
	srv.recv()

	p.Disconnect(nil)
	p.Disconnect(errors.New("second"))
	require.ErrorIs(t, <-connected, transport.ErrCanceled)
	require.Empty(t, connected)
}
