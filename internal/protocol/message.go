// Package protocol implements the Radar wire protocol: a fixed 6-byte
// header (type, options, big-endian body length) followed by a UTF-8 JSON
// body. One frame carries exactly one message.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType identifies the payload carried by a frame.
type MessageType uint8

const (
	MessageTypeCheck      MessageType = 0
	MessageTypeCheckReply MessageType = 1
	MessageTypeTest       MessageType = 2
	MessageTypeTestReply  MessageType = 3
)

func (mt MessageType) String() string {
	switch mt {
	case MessageTypeCheck:
		return "CHECK"
	case MessageTypeCheckReply:
		return "CHECK REPLY"
	case MessageTypeTest:
		return "TEST"
	case MessageTypeTestReply:
		return "TEST REPLY"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(mt))
	}
}

// Valid reports whether the type byte is a member of the enumeration.
func (mt MessageType) Valid() bool {
	return mt <= MessageTypeTestReply
}

// MessageOptions is the per-frame options bitfield. Bits other than NONE
// are reserved (compression, etc.).
type MessageOptions uint8

const (
	OptionNone MessageOptions = 0
)

// HeaderSize is the fixed frame header length in bytes.
const HeaderSize = 6

// DefaultMaxBodyLength bounds the body of a single frame. Frames declaring
// a larger body are rejected before any body byte is buffered.
const DefaultMaxBodyLength = 1 << 20

// ProtocolError reports malformed framing: a short read, an unknown type
// byte, or a body length over the configured maximum. Receivers close the
// connection on any ProtocolError.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Reason
}

// Message is a decoded frame.
type Message struct {
	Type    MessageType
	Options MessageOptions
	Body    []byte
}

// Codec frames and deframes messages over a byte stream.
type Codec struct {
	// MaxBodyLength caps the declared body length on receive.
	// Zero means DefaultMaxBodyLength.
	MaxBodyLength uint32
}

func (c *Codec) maxBody() uint32 {
	if c.MaxBodyLength == 0 {
		return DefaultMaxBodyLength
	}
	return c.MaxBodyLength
}

// Send writes one complete frame. The write is atomic at the framing
// level: it returns only once the entire frame has been handed to w or
// the stream has failed.
func (c *Codec) Send(w io.Writer, msgType MessageType, options MessageOptions, body []byte) error {
	frame := make([]byte, HeaderSize+len(body))
	frame[0] = byte(msgType)
	frame[1] = byte(options)
	binary.BigEndian.PutUint32(frame[2:6], uint32(len(body)))
	copy(frame[HeaderSize:], body)

	for len(frame) > 0 {
		n, err := w.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

// Receive reads exactly one frame. It consumes the 6-byte header, then
// reads until exactly N body bytes are in, and returns the decoded
// message. Anything short of that is a ProtocolError or the underlying
// read error.
func (c *Codec) Receive(r io.Reader) (*Message, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, &ProtocolError{Reason: "short header read"}
		}
		return nil, err
	}

	msgType := MessageType(header[0])
	if !msgType.Valid() {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unknown message type 0x%02X", header[0])}
	}

	length := binary.BigEndian.Uint32(header[2:6])
	if length > c.maxBody() {
		return nil, &ProtocolError{Reason: fmt.Sprintf("declared body length %d exceeds maximum %d", length, c.maxBody())}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &ProtocolError{Reason: "short body read"}
		}
		return nil, err
	}

	return &Message{Type: msgType, Options: MessageOptions(header[1]), Body: body}, nil
}

// TryDecode attempts to parse one frame from the front of buf. It returns
// the decoded message and the number of bytes consumed, or (nil, 0, nil)
// when buf does not yet hold a complete frame. Header violations are
// reported as soon as the header is in, before any body byte is buffered.
func (c *Codec) TryDecode(buf []byte) (*Message, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, nil
	}

	msgType := MessageType(buf[0])
	if !msgType.Valid() {
		return nil, 0, &ProtocolError{Reason: fmt.Sprintf("unknown message type 0x%02X", buf[0])}
	}

	length := binary.BigEndian.Uint32(buf[2:6])
	if length > c.maxBody() {
		return nil, 0, &ProtocolError{Reason: fmt.Sprintf("declared body length %d exceeds maximum %d", length, c.maxBody())}
	}

	total := HeaderSize + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}

	body := make([]byte, length)
	copy(body, buf[HeaderSize:total])
	return &Message{Type: msgType, Options: MessageOptions(buf[1]), Body: body}, total, nil
}

// Encode serializes a message to its wire form without writing it.
func (c *Codec) Encode(m *Message) []byte {
	frame := make([]byte, HeaderSize+len(m.Body))
	frame[0] = byte(m.Type)
	frame[1] = byte(m.Options)
	binary.BigEndian.PutUint32(frame[2:6], uint32(len(m.Body)))
	copy(frame[HeaderSize:], m.Body)
	return frame
}
