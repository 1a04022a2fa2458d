// Package peer negotiates the media session over a signaling channel.
package peer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/shynome/rtcsession/signaling"
	"github.com/shynome/rtcsession/transport"
)

type State = transport.State

type Handlers struct {
	OnConnect          func(err error)
	OnDisconnect       func(err error)
	OnAddStream        func(s *Stream)
	OnRemoveStream     func(s *Stream)
	OnReceiveSignaling func(msg signaling.Message)
}

// Channel is the peer side of a session. Connect brings up signaling and
// media; any failure in either ends in Disconnect.
type Channel interface {
	Connect(opts Options, onComplete func(err error))
	Disconnect(err error)
	State() State
	ClientID() string
	Streams() []*Stream

	Handlers() Handlers
	SetHandlers(h Handlers)
	InternalHandlers() Handlers
	SetInternalHandlers(h Handlers)
}

const DefaultGatherTimeout = 10 * time.Second

type Options struct {
	// Tracks are sent to the remote side.
	Tracks []webrtc.TrackLocal
	// ICEServers is used unless the offer carries its own.
	ICEServers []webrtc.ICEServer
	// ICEPort shares one UDP port between ICE agents. 0 disables it.
	ICEPort uint16
	// GatherTimeout bounds candidate gathering before the answer is sent.
	GatherTimeout time.Duration
}

// Config is what the server needs to place the client in a channel.
type Config struct {
	ChannelID   string
	Role        signaling.Role
	ClientID    string
	Metadata    any
	Multistream bool
}

// Stream is a remote media stream: the tracks sharing one stream id.
type Stream struct {
	id string

	mu     sync.Mutex
	tracks []*webrtc.TrackRemote
}

func NewStream(id string) *Stream { return &Stream{id: id} }

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []*webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*webrtc.TrackRemote(nil), s.tracks...)
}

func (s *Stream) AddTrack(track *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks = append(s.tracks, track)
}

var (
	ErrPeerConnectionFailed = errors.New("peer: peer connection failed")
	ErrUnexpectedOffer      = errors.New("peer: offer received outside of negotiation")
	ErrNoPeerConnection     = errors.New("peer: no peer connection")
)

// UpstreamError is a failure of the media path, as opposed to the
// signaling path.
type UpstreamError struct {
	Cause error
}

func (e *UpstreamError) Error() string { return fmt.Sprintf("peer: upstream: %v", e.Cause) }
func (e *UpstreamError) Unwrap() error { return e.Cause }
