package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/shynome/rtcsession/signaling"
	"golang.zx2c4.com/wireguard/device"
)

// server is a one room signaling server. Every client that connects is
// offered a single VP8 track in stream streamID.
type server struct {
	upgrader websocket.Upgrader
	logger   *device.Logger
}

const streamID = "demo-stream"

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()
	if err := s.serve(ws); err != nil {
		s.logger.Errorf("session: %v", err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error())
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}

func read(ws *websocket.Conn) (msg signaling.Message, err error) {
	defer err2.Handle(&err)
	_, data := try.To2(ws.ReadMessage())
	return signaling.Decode(data)
}

func write(ws *websocket.Conn, msg signaling.Message) error {
	data, err := signaling.Encode(msg)
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (s *server) serve(ws *websocket.Conn) (err error) {
	defer err2.Handle(&err)

	hello, ok := try.To1(read(ws)).(*signaling.Connect)
	if !ok {
		return errNotConnect
	}
	s.logger.Verbosef("client joins %s as %s", hello.ChannelID, hello.Role)

	pc := try.To1(webrtc.NewPeerConnection(webrtc.Configuration{}))
	defer pc.Close()
	track := try.To1(webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID))
	try.To1(pc.AddTrack(track))
	offer := try.To1(pc.CreateOffer(nil))
	gathered := webrtc.GatheringCompletePromise(pc)
	try.To(pc.SetLocalDescription(offer))
	<-gathered

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go publish(ctx, track)

	try.To(write(ws, &signaling.Offer{
		SDP:          pc.LocalDescription().SDP,
		ClientID:     uuid.NewString(),
		ConnectionID: uuid.NewString(),
	}))
	one := 1
	try.To(write(ws, &signaling.NotifyConnection{
		EventType:       "connection.created",
		Role:            hello.Role,
		PublisherCount:  &one,
		SubscriberCount: &one,
	}))

	for {
		switch m := try.To1(read(ws)).(type) {
		case *signaling.Answer:
			try.To(pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: m.SDP}))
		case *signaling.Disconnect:
			s.logger.Verbosef("client leaves: %s", m.Reason)
			return nil
		}
	}
}

func publish(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()
	frame := []byte{0x10, 0x02, 0x00, 0x9d, 0x01, 0x2a}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			track.WriteSample(media.Sample{Data: frame, Duration: 33 * time.Millisecond})
		}
	}
}
