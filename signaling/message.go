package signaling

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

type Role string

const (
	RoleSendonly Role = "sendonly"
	RoleRecvonly Role = "recvonly"
	RoleSendrecv Role = "sendrecv"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSendonly, RoleRecvonly, RoleSendrecv:
		return true
	}
	return false
}

// Message is one signaling message. Type is the wire discriminator.
type Message interface {
	Type() string
}

type Connect struct {
	Role        Role   `json:"role"`
	ChannelID   string `json:"channel_id"`
	ClientID    string `json:"client_id,omitempty"`
	Metadata    any    `json:"metadata,omitempty"`
	Multistream bool   `json:"multistream,omitempty"`
	SDP         string `json:"sdp,omitempty"`
}

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type OfferConfig struct {
	ICEServers         []ICEServer `json:"iceServers,omitempty"`
	ICETransportPolicy string      `json:"iceTransportPolicy,omitempty"`
}

type Offer struct {
	SDP          string       `json:"sdp"`
	ClientID     string       `json:"client_id"`
	ConnectionID string       `json:"connection_id,omitempty"`
	Config       *OfferConfig `json:"config,omitempty"`
}

type Answer struct {
	SDP string `json:"sdp"`
}

type Candidate struct {
	Candidate string `json:"candidate"`
}

type ReOffer struct {
	SDP string `json:"sdp"`
}

type ReAnswer struct {
	SDP string `json:"sdp"`
}

type Ping struct {
	Stats bool `json:"stats,omitempty"`
}

type Pong struct {
	Stats any `json:"stats,omitempty"`
}

// Notify is a server notification other than a connection count update.
type Notify struct {
	EventType string          `json:"event_type"`
	Raw       json.RawMessage `json:"-"`
}

// NotifyConnection is sent when a connection joins, leaves or changes
// in the channel. It carries the channel's current publisher and
// subscriber counts. A count the server left out is nil.
type NotifyConnection struct {
	EventType       string `json:"event_type"`
	Role            Role   `json:"role,omitempty"`
	ClientID        string `json:"client_id,omitempty"`
	ConnectionID    string `json:"connection_id,omitempty"`
	PublisherCount  *int   `json:"channel_upstream_connections,omitempty"`
	SubscriberCount *int   `json:"channel_downstream_connections,omitempty"`
}

type Disconnect struct {
	Reason string `json:"reason,omitempty"`
}

// Unknown holds a message of a type this package does not model.
type Unknown struct {
	Kind string
	Raw  json.RawMessage
}

func (Connect) Type() string          { return "connect" }
func (Offer) Type() string            { return "offer" }
func (Answer) Type() string           { return "answer" }
func (Candidate) Type() string        { return "candidate" }
func (ReOffer) Type() string          { return "re-offer" }
func (ReAnswer) Type() string         { return "re-answer" }
func (Ping) Type() string             { return "ping" }
func (Pong) Type() string             { return "pong" }
func (Notify) Type() string           { return "notify" }
func (NotifyConnection) Type() string { return "notify" }
func (Disconnect) Type() string       { return "disconnect" }
func (u Unknown) Type() string        { return u.Kind }

const connectionEventPrefix = "connection."

// Encode renders m as a JSON object with its "type" field set.
func Encode(m Message) (data []byte, err error) {
	defer err2.Handle(&err)
	switch m := m.(type) {
	case *Unknown:
		return m.Raw, nil
	case Unknown:
		return m.Raw, nil
	}
	fields := map[string]json.RawMessage{}
	try.To(json.Unmarshal(try.To1(json.Marshal(m)), &fields))
	fields["type"] = try.To1(json.Marshal(m.Type()))
	return json.Marshal(fields)
}

// Decode parses a message. Types it does not model come back as
// *Unknown rather than an error.
func Decode(data []byte) (Message, error) {
	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("signaling: decode: %w", err)
	}
	return m, nil
}

func decode(data []byte) (m Message, err error) {
	defer err2.Handle(&err)
	var head struct {
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}
	try.To(json.Unmarshal(data, &head))
	switch head.Type {
	case "connect":
		m = &Connect{}
	case "offer":
		m = &Offer{}
	case "answer":
		m = &Answer{}
	case "candidate":
		m = &Candidate{}
	case "re-offer":
		m = &ReOffer{}
	case "re-answer":
		m = &ReAnswer{}
	case "ping":
		m = &Ping{}
	case "pong":
		m = &Pong{}
	case "disconnect":
		m = &Disconnect{}
	case "notify":
		if strings.HasPrefix(head.EventType, connectionEventPrefix) {
			m = &NotifyConnection{}
		} else {
			m = &Notify{Raw: append(json.RawMessage(nil), data...)}
		}
	case "":
		return nil, fmt.Errorf("message has no type")
	default:
		return &Unknown{Kind: head.Type, Raw: append(json.RawMessage(nil), data...)}, nil
	}
	try.To(json.Unmarshal(data, m))
	return m, nil
}
