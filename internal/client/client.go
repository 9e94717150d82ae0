// Package client implements the Radar monitoring client: a resilient
// persistent connection to the server, the queues crossing between the
// connection loop and the check executor, and the reconnect policy.
package client

import (
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radarhq/radar/internal/config"
	"github.com/radarhq/radar/internal/network"
	"github.com/radarhq/radar/internal/protocol"
)

// State is the client's connection state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateStopped:
		return "STOPPED"
	}
	return "INVALID"
}

// ReconnectDelays is the rotating back-off cycle between failed connect
// attempts. Each failure sleeps the head delay, then rotates it to the
// tail: 5, 15, 60, 5, 15, 60, ...
var ReconnectDelays = []time.Duration{5 * time.Second, 15 * time.Second, 60 * time.Second}

const dialTimeout = 5 * time.Second

// Incoming is one decoded message handed to the upper layer.
type Incoming struct {
	Type protocol.MessageType
	Body json.RawMessage
}

// Outgoing is one pending reply waiting to be framed and sent.
type Outgoing struct {
	Type protocol.MessageType
	Body []byte
}

// DefaultQueueSize bounds both crossing queues.
const DefaultQueueSize = 256

// Client owns the socket and the two queues that are the only sanctioned
// crossing between the connection loop and the rest of the process.
type Client struct {
	cfg    *config.Config
	logger *slog.Logger
	codec  *protocol.Codec

	// inbound carries pending replies towards the wire; outbound carries
	// decoded received messages towards the executor.
	inbound  chan Outgoing
	outbound chan Incoming

	delays []time.Duration
	state  atomic.Int32

	mu   sync.Mutex
	conn *network.Connection

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New builds a client around the connect section of cfg.
func New(cfg *config.Config, logger *slog.Logger) *Client {
	delays := make([]time.Duration, len(ReconnectDelays))
	copy(delays, ReconnectDelays)
	return &Client{
		cfg:      cfg,
		logger:   logger,
		codec:    &protocol.Codec{},
		inbound:  make(chan Outgoing, DefaultQueueSize),
		outbound: make(chan Incoming, DefaultQueueSize),
		delays:   delays,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// Outbound exposes decoded received messages to the upper layer.
func (c *Client) Outbound() <-chan Incoming {
	return c.outbound
}

// EnqueueReply queues a reply for transmission on the next connection
// tick. Blocks only while the inbound queue is full.
func (c *Client) EnqueueReply(msgType protocol.MessageType, body []byte) {
	select {
	case c.inbound <- Outgoing{Type: msgType, Body: body}:
	case <-c.stop:
	}
}

// Done is closed when the connection loop has fully stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Stop sets the stop flag; the connection loop, a running reconnect sleep
// and a blocked EnqueueReply all observe it in bounded time.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Stop()
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Client) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Run drives the DISCONNECTED -> CONNECTING -> CONNECTED cycle until the
// stop flag is set (or the first failure, when reconnecting is off), then
// lands in STOPPED.
func (c *Client) Run() {
	defer close(c.done)
	defer c.setState(StateStopped)
	c.setState(StateDisconnected)

	for !c.stopped() {
		c.setState(StateConnecting)
		raw := c.connect()
		if raw == nil {
			return
		}
		c.setState(StateConnected)
		c.logger.Info("connected", "address", c.cfg.ConnectAddr())

		conn := network.New(raw, c.codec, 0, network.Callbacks{
			OnReceive:    c.onReceive,
			OnTimeout:    c.onTimeout,
			OnDisconnect: c.onDisconnect,
		})
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		conn.Run()

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)
	}
}

// connect dials until a connection is up or the policy gives out. Each
// failure sleeps the head of the delay cycle (interruptibly) and rotates
// it; with reconnecting off a single failure stops the client.
func (c *Client) connect() net.Conn {
	for !c.stopped() {
		conn, err := net.DialTimeout("tcp", c.cfg.ConnectAddr(), dialTimeout)
		if err == nil {
			return conn
		}
		c.logger.Error("can't connect", "address", c.cfg.ConnectAddr(), "error", err)

		if !c.cfg.Reconnect {
			return nil
		}
		c.sleep()
	}
	return nil
}

func (c *Client) sleep() {
	timer := time.NewTimer(c.delays[0])
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.stop:
	}
	c.delays = append(c.delays[1:], c.delays[0])
}

// onReceive hands a decoded frame to the outbound queue. On overflow the
// oldest queued message is dropped so fresh dispatches keep flowing.
func (c *Client) onReceive(msg *protocol.Message) {
	in := Incoming{Type: msg.Type, Body: msg.Body}
	select {
	case c.outbound <- in:
		return
	default:
	}
	select {
	case dropped := <-c.outbound:
		c.logger.Warn("outbound queue full, dropping oldest message", "type", dropped.Type.String())
	default:
	}
	select {
	case c.outbound <- in:
	default:
	}
}

// onTimeout runs once per idle tick: one pending reply, if any, goes out.
func (c *Client) onTimeout() {
	select {
	case reply := <-c.inbound:
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Send(reply.Type, protocol.OptionNone, reply.Body)
		}
	default:
	}
}

func (c *Client) onDisconnect(err error) {
	c.logger.Warn("disconnected from server", "error", err)
}
