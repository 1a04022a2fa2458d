package rtcsession

import (
	"errors"

	"github.com/shynome/rtcsession/peer"
	"github.com/shynome/rtcsession/transport"
)

var (
	ErrConnectionBusy     = errors.New("rtcsession: connection is already connecting or connected")
	ErrConnectionTimeout  = errors.New("rtcsession: connection timed out")
	ErrConnectionCanceled = errors.New("rtcsession: connection canceled")
	ErrConnectionClosed   = errors.New("rtcsession: connection already used, create a new one")
)

type (
	// TransportError reports an abnormal close of the signaling socket.
	TransportError = transport.Error
	// UpstreamError reports a failure of the media path.
	UpstreamError = peer.UpstreamError
)
