package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/ice/v2"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/shynome/rtcsession/internal/serial"
	"github.com/shynome/rtcsession/mux"
	"github.com/shynome/rtcsession/signaling"
	"github.com/shynome/rtcsession/transport"
	"golang.zx2c4.com/wireguard/device"
)

// WebRTC answers the server's offer with a pion PeerConnection. ICE
// candidates are gathered before the answer is sent.
type WebRTC struct {
	sig    *signaling.Channel
	config Config
	logger *device.Logger

	mu        sync.Mutex
	state     State
	used      bool
	onConnect func(err error)
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc
	pc        *webrtc.PeerConnection
	udpMux    ice.UDPMux
	clientID  string
	streams   []*Stream
	internal  Handlers
	public    Handlers

	events serial.Queue
}

var _ Channel = (*WebRTC)(nil)

type Option func(*WebRTC)

func WithLogger(logger *device.Logger) Option {
	return func(p *WebRTC) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewWebRTC(sig *signaling.Channel, config Config, opts ...Option) *WebRTC {
	p := &WebRTC{
		sig:    sig,
		config: config,
		logger: device.NewLogger(device.LogLevelError, "peer: "),
	}
	for _, opt := range opts {
		opt(p)
	}
	sig.SetInternalHandlers(signaling.Handlers{
		OnDisconnect: p.Disconnect,
		OnReceive:    p.receive,
	})
	return p
}

func (p *WebRTC) Signaling() *signaling.Channel { return p.sig }

func (p *WebRTC) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *WebRTC) ClientID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID
}

func (p *WebRTC) Streams() []*Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Stream(nil), p.streams...)
}

func (p *WebRTC) Handlers() Handlers {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.public
}

func (p *WebRTC) SetHandlers(h Handlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.public = h
}

func (p *WebRTC) InternalHandlers() Handlers {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.internal
}

func (p *WebRTC) SetInternalHandlers(h Handlers) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.internal = h
}

// Connect opens signaling, introduces the client and waits for the
// PeerConnection to connect. onComplete runs exactly once.
func (p *WebRTC) Connect(opts Options, onComplete func(err error)) {
	p.mu.Lock()
	if p.used {
		p.mu.Unlock()
		if onComplete != nil {
			p.events.Go(func() { onComplete(transport.ErrChannelClosed) })
		}
		return
	}
	p.used = true
	p.state = transport.StateConnecting
	p.onConnect = onComplete
	p.opts = opts
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.mu.Unlock()

	p.sig.Connect(func(err error) {
		if err != nil {
			p.Disconnect(err)
			return
		}
		msg := &signaling.Connect{
			Role:        p.config.Role,
			ChannelID:   p.config.ChannelID,
			ClientID:    p.config.ClientID,
			Metadata:    p.config.Metadata,
			Multistream: p.config.Multistream,
		}
		if err := p.sig.Send(msg); err != nil {
			p.Disconnect(err)
		}
	})
}

// Disconnect is idempotent. It says goodbye to the server when it still
// can, then closes the PeerConnection and the signaling channel.
func (p *WebRTC) Disconnect(err error) {
	p.mu.Lock()
	if p.state.IsClosing() {
		p.mu.Unlock()
		return
	}
	onConnect := p.onConnect
	p.onConnect = nil
	p.state = transport.StateDisconnecting
	pc, udpMux, cancel := p.pc, p.udpMux, p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if onConnect != nil {
		cause := err
		if cause == nil {
			cause = transport.ErrCanceled
		}
		p.events.Go(func() { onConnect(cause) })
		p.fire(false, func(h Handlers) {
			if h.OnConnect != nil {
				h.OnConnect(cause)
			}
		})
	}

	if p.sig.State() == transport.StateConnected {
		bye := &signaling.Disconnect{}
		if err != nil {
			bye.Reason = err.Error()
		}
		if err := p.sig.Send(bye); err != nil {
			p.logger.Verbosef("send disconnect: %v", err)
		}
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			p.logger.Errorf("close peer connection: %v", err)
		}
	}
	if udpMux != nil {
		udpMux.Close()
	}
	p.sig.Disconnect(err)

	p.mu.Lock()
	p.state = transport.StateDisconnected
	p.mu.Unlock()

	if err != nil {
		p.logger.Errorf("disconnected: %v", err)
	} else {
		p.logger.Verbosef("disconnected")
	}
	p.fire(false, func(h Handlers) {
		if h.OnDisconnect != nil {
			h.OnDisconnect(err)
		}
	})
}

// fire queues call with the handler snapshot taken at dispatch. A live
// event is dropped once the channel is no longer active.
func (p *WebRTC) fire(live bool, call func(h Handlers)) {
	p.events.Go(func() {
		p.mu.Lock()
		if live && !p.state.IsActive() {
			p.mu.Unlock()
			return
		}
		internal, public := p.internal, p.public
		p.mu.Unlock()
		call(internal)
		call(public)
	})
}

func (p *WebRTC) receive(msg signaling.Message) {
	switch m := msg.(type) {
	case *signaling.Offer:
		// gathering can take a while, keep the signaling queue moving
		go func() {
			if err := p.answer(m); err != nil {
				p.Disconnect(err)
			}
		}()
	case *signaling.ReOffer:
		if err := p.reanswer(m); err != nil {
			p.Disconnect(err)
			return
		}
	case *signaling.Ping:
		p.pong(m)
	}
	p.fire(true, func(h Handlers) {
		if h.OnReceiveSignaling != nil {
			h.OnReceiveSignaling(msg)
		}
	})
}

func (p *WebRTC) newAPI(opts Options) (api *webrtc.API, udpMux ice.UDPMux, err error) {
	defer err2.Handle(&err)

	m := &webrtc.MediaEngine{}
	try.To(m.RegisterDefaultCodecs())
	registry := &interceptor.Registry{}
	try.To(webrtc.RegisterDefaultInterceptors(m, registry))

	settingEngine := webrtc.SettingEngine{}
	if opts.ICEPort != 0 && mux.WithUDPMux != nil {
		udpMux = try.To1(mux.WithUDPMux(&settingEngine, opts.ICEPort))
	}
	api = webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	)
	return
}

func (p *WebRTC) answer(offer *signaling.Offer) (err error) {
	defer err2.Handle(&err)

	p.mu.Lock()
	if p.state != transport.StateConnecting || p.pc != nil {
		p.mu.Unlock()
		return ErrUnexpectedOffer
	}
	opts, ctx := p.opts, p.ctx
	p.mu.Unlock()

	api, udpMux := try.To2(p.newAPI(opts))
	config := webrtc.Configuration{ICEServers: opts.ICEServers}
	if c := offer.Config; c != nil {
		if len(c.ICEServers) > 0 {
			config.ICEServers = iceServers(c.ICEServers)
		}
		if c.ICETransportPolicy != "" {
			config.ICETransportPolicy = webrtc.NewICETransportPolicy(c.ICETransportPolicy)
		}
	}
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		if udpMux != nil {
			udpMux.Close()
		}
		return err
	}

	p.mu.Lock()
	if p.state != transport.StateConnecting {
		p.mu.Unlock()
		pc.Close()
		if udpMux != nil {
			udpMux.Close()
		}
		return nil
	}
	p.pc = pc
	p.udpMux = udpMux
	p.clientID = offer.ClientID
	p.mu.Unlock()

	pc.OnTrack(p.handleTrack)
	pc.OnConnectionStateChange(p.handleConnectionState)

	for _, track := range opts.Tracks {
		try.To1(pc.AddTrack(track))
	}
	try.To(pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}))
	answer := try.To1(pc.CreateAnswer(nil))
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	try.To(pc.SetLocalDescription(answer))
	try.To(waitGather(ctx, gatherComplete, opts.GatherTimeout))

	p.logger.Verbosef("answer client %s", offer.ClientID)
	try.To(p.sig.Send(&signaling.Answer{SDP: pc.LocalDescription().SDP}))
	return
}

func waitGather(ctx context.Context, done <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultGatherTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("peer: ice gathering: %w", ctx.Err())
	}
}

func iceServers(servers []signaling.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs, Username: s.Username}
		if s.Credential != "" {
			server.Credential = s.Credential
		}
		out = append(out, server)
	}
	return out
}

func (p *WebRTC) peerConnection() *webrtc.PeerConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc
}

func (p *WebRTC) reanswer(offer *signaling.ReOffer) (err error) {
	defer err2.Handle(&err)

	pc := p.peerConnection()
	if pc == nil {
		return ErrNoPeerConnection
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	try.To(pc.SetRemoteDescription(desc))
	answer := try.To1(pc.CreateAnswer(nil))
	try.To(pc.SetLocalDescription(answer))
	try.To(p.sig.Send(&signaling.ReAnswer{SDP: pc.LocalDescription().SDP}))

	p.pruneStreams(try.To1(announcedStreams(desc)))
	return
}

func (p *WebRTC) pong(ping *signaling.Ping) {
	pong := &signaling.Pong{}
	if ping.Stats {
		if pc := p.peerConnection(); pc != nil {
			pong.Stats = pc.GetStats()
		}
	}
	if err := p.sig.Send(pong); err != nil {
		p.logger.Errorf("send pong: %v", err)
	}
}

func (p *WebRTC) handleConnectionState(s webrtc.PeerConnectionState) {
	p.logger.Verbosef("peer connection %s", s)
	switch s {
	case webrtc.PeerConnectionStateConnected:
		p.mu.Lock()
		if p.state != transport.StateConnecting {
			p.mu.Unlock()
			return
		}
		p.state = transport.StateConnected
		onConnect := p.onConnect
		p.onConnect = nil
		p.mu.Unlock()

		if onConnect != nil {
			p.events.Go(func() { onConnect(nil) })
		}
		p.fire(true, func(h Handlers) {
			if h.OnConnect != nil {
				h.OnConnect(nil)
			}
		})
	case webrtc.PeerConnectionStateFailed:
		p.Disconnect(&UpstreamError{Cause: ErrPeerConnectionFailed})
	}
}

func (p *WebRTC) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	id := track.StreamID()
	p.mu.Lock()
	var stream *Stream
	for _, s := range p.streams {
		if s.id == id {
			stream = s
			break
		}
	}
	added := stream == nil
	if added {
		stream = NewStream(id)
		p.streams = append(p.streams, stream)
	}
	p.mu.Unlock()

	stream.AddTrack(track)
	p.logger.Verbosef("track %s in stream %s", track.ID(), id)
	if added {
		p.fire(true, func(h Handlers) {
			if h.OnAddStream != nil {
				h.OnAddStream(stream)
			}
		})
	}
}

// pruneStreams drops every stream whose id is not in keep.
func (p *WebRTC) pruneStreams(keep map[string]bool) {
	p.mu.Lock()
	var kept, removed []*Stream
	for _, s := range p.streams {
		if keep[s.id] {
			kept = append(kept, s)
		} else {
			removed = append(removed, s)
		}
	}
	p.streams = kept
	p.mu.Unlock()

	for _, s := range removed {
		s := s
		p.logger.Verbosef("stream %s removed", s.id)
		p.fire(true, func(h Handlers) {
			if h.OnRemoveStream != nil {
				h.OnRemoveStream(s)
			}
		})
	}
}
