package transport

import "github.com/gorilla/websocket"

type MessageType int

const (
	TextMessage   MessageType = websocket.TextMessage
	BinaryMessage MessageType = websocket.BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is a text or binary payload.
type Message struct {
	Type MessageType
	Data []byte
}

func Text(s string) Message      { return Message{Type: TextMessage, Data: []byte(s)} }
func Binary(b []byte) Message    { return Message{Type: BinaryMessage, Data: b} }
func (m Message) IsText() bool   { return m.Type == TextMessage }
func (m Message) String() string { return string(m.Data) }

// classify returns the message for a native frame, or false when the
// frame is neither text nor binary.
func classify(t MessageType, data []byte) (Message, bool) {
	switch t {
	case TextMessage, BinaryMessage:
		return Message{Type: t, Data: data}, true
	default:
		return Message{}, false
	}
}
