package transport

import (
	"testing"

	"github.com/lainio/err2/assert"
)

func TestStatusCodeRoundTrip(t *testing.T) {
	for _, code := range StatusCodes() {
		assert.That(code.Known())
		assert.Equal(DecodeStatusCode(code.Code()), code)
	}
	assert.Equal(len(StatusCodes()), 14)
	assert.Equal(StatusInternalError.Code(), 1011)
	assert.Equal(DecodeStatusCode(1011).String(), "internalError")
}

func TestStatusCodeOther(t *testing.T) {
	other := DecodeStatusCode(4000)
	assert.That(!other.Known())
	assert.Equal(other.Code(), 4000)
	assert.Equal(other.String(), "other(4000)")
	assert.That(!DecodeStatusCode(1004).Known())
	assert.That(!DecodeStatusCode(1014).Known())
}

func TestClassify(t *testing.T) {
	msg, ok := classify(TextMessage, []byte("hi"))
	assert.That(ok)
	assert.That(msg.IsText())
	assert.Equal(msg.String(), "hi")

	msg, ok = classify(BinaryMessage, []byte{1, 2})
	assert.That(ok)
	assert.Equal(msg.Type, BinaryMessage)

	_, ok = classify(MessageType(9), []byte("ping"))
	assert.That(!ok)
}
