// Package network implements the non-blocking connection runtime shared
// by the Radar client and the server's per-client sessions: a single TCP
// connection pumped by a 200 ms tick, with receive/timeout/disconnect
// callbacks and write buffering across ticks.
package network

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/radarhq/radar/internal/protocol"
)

// NetworkMonitorTimeout is the readiness tick: the longest the loop waits
// for inbound bytes before invoking OnTimeout. It bounds the latency of
// observing the stop flag.
const NetworkMonitorTimeout = 200 * time.Millisecond

// Callbacks are the three hooks the owning application plugs into the
// loop. OnDisconnect fires exactly once, whether the peer closed, the
// stream failed, or a protocol violation forced the connection down.
type Callbacks struct {
	OnReceive    func(*protocol.Message)
	OnTimeout    func()
	OnDisconnect func(err error)
}

// Connection wraps one established TCP connection in a cooperative loop.
type Connection struct {
	conn           net.Conn
	codec          *protocol.Codec
	callbacks      Callbacks
	monitorTimeout time.Duration

	writeMu  sync.Mutex
	writeBuf []byte

	stopOnce       sync.Once
	stop           chan struct{}
	disconnectOnce sync.Once
}

// New wraps conn. A nil codec gets the default frame limits; a zero
// monitorTimeout gets NetworkMonitorTimeout.
func New(conn net.Conn, codec *protocol.Codec, monitorTimeout time.Duration, callbacks Callbacks) *Connection {
	if codec == nil {
		codec = &protocol.Codec{}
	}
	if monitorTimeout <= 0 {
		monitorTimeout = NetworkMonitorTimeout
	}
	return &Connection{
		conn:           conn,
		codec:          codec,
		callbacks:      callbacks,
		monitorTimeout: monitorTimeout,
		stop:           make(chan struct{}),
	}
}

// RemoteAddr exposes the peer address for correlation and logging.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send queues one frame for transmission. The loop drains the buffer on
// the next tick; partial writes keep the remainder queued. Safe from any
// goroutine.
func (c *Connection) Send(msgType protocol.MessageType, options protocol.MessageOptions, body []byte) {
	frame := c.codec.Encode(&protocol.Message{Type: msgType, Options: options, Body: body})
	c.writeMu.Lock()
	c.writeBuf = append(c.writeBuf, frame...)
	c.writeMu.Unlock()
}

// Stop asks the loop to exit; it observes the flag within one tick.
func (c *Connection) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Connection) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Run pumps the connection until the stop flag is set or the stream dies.
// It owns the socket: when Run returns the connection is closed and
// OnDisconnect has fired exactly once (unless stopped locally).
func (c *Connection) Run() {
	defer c.conn.Close()

	readBuf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for !c.stopped() {
		if err := c.drainWrites(); err != nil {
			c.disconnect(err)
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(c.monitorTimeout)) //nolint:errcheck
		n, err := c.conn.Read(chunk)
		if n > 0 {
			readBuf = append(readBuf, chunk[:n]...)
			for {
				msg, consumed, decodeErr := c.codec.TryDecode(readBuf)
				if decodeErr != nil {
					c.disconnect(decodeErr)
					return
				}
				if msg == nil {
					break
				}
				readBuf = readBuf[consumed:]
				if c.callbacks.OnReceive != nil {
					c.callbacks.OnReceive(msg)
				}
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if n == 0 && c.callbacks.OnTimeout != nil {
					c.callbacks.OnTimeout()
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				c.disconnect(io.EOF)
				return
			}
			c.disconnect(err)
			return
		}
	}
}

// drainWrites pushes buffered frames out, keeping whatever a partial
// write leaves behind for the next tick.
func (c *Connection) drainWrites() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if len(c.writeBuf) == 0 {
		return nil
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.monitorTimeout)) //nolint:errcheck
	n, err := c.conn.Write(c.writeBuf)
	c.writeBuf = c.writeBuf[n:]
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	}
	return nil
}

func (c *Connection) disconnect(err error) {
	c.disconnectOnce.Do(func() {
		if c.callbacks.OnDisconnect != nil {
			c.callbacks.OnDisconnect(err)
		}
	})
}
