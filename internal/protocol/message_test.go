package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendReceiveRoundTrip(t *testing.T) {
	codec := &Codec{}
	body := []byte(`[{"id":7,"path":"ok.sh"}]`)

	var buf bytes.Buffer
	require.NoError(t, codec.Send(&buf, MessageTypeCheck, OptionNone, body))

	msg, err := codec.Receive(&buf)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeCheck, msg.Type)
	assert.Equal(t, OptionNone, msg.Options)
	assert.Equal(t, body, msg.Body)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	codec := &Codec{}
	original := &Message{Type: MessageTypeCheckReply, Options: OptionNone, Body: []byte(`{"id":1,"status":0}`)}

	frame := codec.Encode(original)
	decoded, consumed, err := codec.TryDecode(frame)
	require.NoError(t, err)
	assert.Equal(t, len(frame), consumed)
	assert.Equal(t, original, decoded)

	// And back again.
	assert.Equal(t, frame, codec.Encode(decoded))
}

func TestReceiveEmptyBody(t *testing.T) {
	codec := &Codec{}
	var buf bytes.Buffer
	require.NoError(t, codec.Send(&buf, MessageTypeTest, OptionNone, nil))

	msg, err := codec.Receive(&buf)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeTest, msg.Type)
	assert.Empty(t, msg.Body)
}

func TestReceiveRejectsUnknownType(t *testing.T) {
	codec := &Codec{}
	frame := []byte{0xAB, 0x00, 0x00, 0x00, 0x00, 0x00}

	_, err := codec.Receive(bytes.NewReader(frame))
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Error(), "unknown message type")
}

func TestReceiveRejectsOversizeFrame(t *testing.T) {
	codec := &Codec{MaxBodyLength: 16}
	var buf bytes.Buffer
	require.NoError(t, codec.Send(&buf, MessageTypeCheck, OptionNone, bytes.Repeat([]byte("x"), 64)))

	_, err := codec.Receive(&buf)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Error(), "exceeds maximum")
}

func TestReceiveRejectsShortHeader(t *testing.T) {
	codec := &Codec{}
	_, err := codec.Receive(bytes.NewReader([]byte{0x00, 0x00, 0x00}))

	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Error(), "short header")
}

func TestReceiveRejectsShortBody(t *testing.T) {
	codec := &Codec{}
	frame := codec.Encode(&Message{Type: MessageTypeCheck, Body: []byte("full body")})

	_, err := codec.Receive(bytes.NewReader(frame[:len(frame)-3]))
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Error(), "short body")
}

func TestTryDecodeWaitsForCompleteFrame(t *testing.T) {
	codec := &Codec{}
	frame := codec.Encode(&Message{Type: MessageTypeCheck, Body: []byte(`[]`)})

	for cut := 0; cut < len(frame); cut++ {
		msg, consumed, err := codec.TryDecode(frame[:cut])
		require.NoError(t, err)
		assert.Nil(t, msg)
		assert.Zero(t, consumed)
	}

	msg, consumed, err := codec.TryDecode(frame)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, len(frame), consumed)
}

func TestTryDecodeFailsFastOnHeaderViolations(t *testing.T) {
	codec := &Codec{MaxBodyLength: 8}

	// Unknown type: rejected on the very first byte of a full header.
	_, _, err := codec.TryDecode([]byte{0x7F, 0, 0, 0, 0, 0})
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)

	// Oversize: rejected before any body byte arrives.
	oversize := []byte{byte(MessageTypeCheck), 0, 0xFF, 0xFF, 0xFF, 0xFF}
	_, _, err = codec.TryDecode(oversize)
	assert.ErrorAs(t, err, &protoErr)
}

func TestMessageTypeNames(t *testing.T) {
	assert.Equal(t, "CHECK", MessageTypeCheck.String())
	assert.Equal(t, "CHECK REPLY", MessageTypeCheckReply.String())
	assert.Equal(t, "TEST", MessageTypeTest.String())
	assert.Equal(t, "TEST REPLY", MessageTypeTestReply.String())
	assert.Contains(t, MessageType(9).String(), "UNKNOWN")
}
