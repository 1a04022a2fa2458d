package peer

import (
	"strings"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v3"
)

// announcedStreams lists the stream ids the remote side still sends, read
// from the msid attribute of every media section that is not receive only
// or inactive.
func announcedStreams(desc webrtc.SessionDescription) (ids map[string]bool, err error) {
	defer err2.Handle(&err)
	parsed := try.To1(desc.Unmarshal())
	ids = map[string]bool{}
	for _, media := range parsed.MediaDescriptions {
		if sendsNothing(media) {
			continue
		}
		for _, attr := range media.Attributes {
			if attr.Key != sdp.AttrKeyMsid {
				continue
			}
			if fields := strings.Fields(attr.Value); len(fields) > 0 {
				ids[fields[0]] = true
			}
		}
	}
	return
}

func sendsNothing(media *sdp.MediaDescription) bool {
	for _, key := range []string{sdp.AttrKeyRecvOnly, sdp.AttrKeyInactive} {
		if _, ok := media.Attribute(key); ok {
			return true
		}
	}
	return false
}
