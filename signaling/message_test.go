package signaling

import (
	"encoding/json"
	"testing"

	"github.com/lainio/err2/assert"
	"github.com/lainio/err2/try"
	"github.com/stretchr/testify/require"
)

func count(n int) *int { return &n }

func TestDecode(t *testing.T) {
	cases := []struct {
		raw  string
		want Message
	}{
		{`{"type":"offer","sdp":"v=0","client_id":"c1","connection_id":"x","config":{"iceServers":[{"urls":["stun:a"]}]}}`,
			&Offer{SDP: "v=0", ClientID: "c1", ConnectionID: "x", Config: &OfferConfig{ICEServers: []ICEServer{{URLs: []string{"stun:a"}}}}}},
		{`{"type":"re-offer","sdp":"v=1"}`, &ReOffer{SDP: "v=1"}},
		{`{"type":"ping","stats":true}`, &Ping{Stats: true}},
		{`{"type":"disconnect","reason":"bye"}`, &Disconnect{Reason: "bye"}},
		{`{"type":"notify","event_type":"connection.created","role":"sendonly","channel_upstream_connections":3,"channel_downstream_connections":5}`,
			&NotifyConnection{EventType: "connection.created", Role: RoleSendonly, PublisherCount: count(3), SubscriberCount: count(5)}},
		{`{"type":"notify","event_type":"connection.destroyed","channel_upstream_connections":2}`,
			&NotifyConnection{EventType: "connection.destroyed", PublisherCount: count(2)}},
	}
	for _, c := range cases {
		got := try.To1(Decode([]byte(c.raw)))
		require.Equal(t, c.want, got, c.raw)
	}
}

func TestDecodeNotify(t *testing.T) {
	raw := `{"type":"notify","event_type":"spotlight.changed","spotlight_id":"s"}`
	m := try.To1(Decode([]byte(raw)))
	n, ok := m.(*Notify)
	assert.That(ok)
	assert.Equal(n.EventType, "spotlight.changed")
	require.JSONEq(t, raw, string(n.Raw))
}

func TestDecodeUnknown(t *testing.T) {
	m := try.To1(Decode([]byte(`{"type":"redirect","location":"wss://x"}`)))
	u, ok := m.(*Unknown)
	assert.That(ok)
	assert.Equal(u.Type(), "redirect")

	_, err := Decode([]byte(`{"sdp":"v=0"}`))
	require.Error(t, err)
	_, err = Decode([]byte(`not json`))
	require.Error(t, err)
}

func TestEncode(t *testing.T) {
	data := try.To1(Encode(&Connect{Role: RoleRecvonly, ChannelID: "room", Metadata: map[string]any{"k": "v"}}))
	var fields map[string]any
	try.To(json.Unmarshal(data, &fields))
	assert.Equal(fields["type"], "connect")
	assert.Equal(fields["role"], "recvonly")
	assert.Equal(fields["channel_id"], "room")
	_, hasSDP := fields["sdp"]
	assert.That(!hasSDP)

	back := try.To1(Decode(data))
	c, ok := back.(*Connect)
	assert.That(ok)
	assert.Equal(c.ChannelID, "room")

	data = try.To1(Encode(Pong{}))
	require.JSONEq(t, `{"type":"pong"}`, string(data))
}

func TestRole(t *testing.T) {
	assert.That(RoleSendrecv.Valid())
	assert.That(!Role("publisher").Valid())
}
