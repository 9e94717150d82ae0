package server

import (
	"encoding/json"
	"errors"
	"net"
	"strconv"

	"github.com/google/uuid"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/ident"
	"github.com/radarhq/radar/internal/monitors"
	"github.com/radarhq/radar/internal/network"
	"github.com/radarhq/radar/internal/plugin"
	"github.com/radarhq/radar/internal/protocol"
	"github.com/radarhq/radar/internal/registry"
)

// Session is one connected client: its connection loop, the monitors that
// matched its address, and the handles riding the dispatcher queue on its
// behalf.
type Session struct {
	ID      string
	Address string
	Port    int

	server *Server
	conn   *network.Connection

	monitors       []*monitors.Monitor
	bound          []checks.Updatable
	checkHandles   []registry.Handle
	contactHandles []registry.Handle
}

// SessionInfo is the status-API projection of a session.
type SessionInfo struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Port     int    `json:"port"`
	Monitors int    `json:"monitors"`
	Checks   int    `json:"checks"`
}

func newSession(s *Server, raw net.Conn) *Session {
	address, portStr, _ := net.SplitHostPort(raw.RemoteAddr().String())
	port, _ := strconv.Atoi(portStr)

	session := &Session{
		ID:      uuid.NewString(),
		Address: address,
		Port:    port,
		server:  s,
	}

	session.monitors = s.defs.MonitorsFor(address)
	seen := make(map[checks.Updatable]bool)
	seenContacts := make(map[registry.Handle]bool)
	for _, m := range session.monitors {
		for _, c := range m.Checks {
			if seen[c] {
				continue
			}
			seen[c] = true
			session.bound = append(session.bound, c)
			session.checkHandles = append(session.checkHandles, s.checkHandles[c])
		}
		for _, c := range m.Contacts {
			h := s.contactHandles[c]
			if seenContacts[h] {
				continue
			}
			seenContacts[h] = true
			session.contactHandles = append(session.contactHandles, h)
		}
	}

	session.conn = network.New(raw, s.codec, 0, network.Callbacks{
		OnReceive:    session.onReceive,
		OnDisconnect: session.onDisconnect,
	})
	return session
}

func (s *Session) info() SessionInfo {
	total := 0
	for _, c := range s.bound {
		total += len(c.AsList())
	}
	return SessionInfo{ID: s.ID, Address: s.Address, Port: s.Port,
		Monitors: len(s.monitors), Checks: total}
}

func (s *Session) run() {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.server.stop:
			s.conn.Stop()
		case <-done:
		}
	}()
	s.conn.Run()
}

func (s *Session) stop() {
	s.conn.Stop()
}

// dispatchChecks sends the client everything it should run: the flattened
// list of the check projections of every bound check and group.
func (s *Session) dispatchChecks() {
	var dicts []ident.Dict
	for _, c := range s.bound {
		dicts = append(dicts, c.ToCheckDict()...)
	}
	if len(dicts) == 0 {
		return
	}

	body, err := json.Marshal(dicts)
	if err != nil {
		s.server.logger.Error("can't serialize check dispatch", "session", s.ID, "error", err)
		return
	}
	s.conn.Send(protocol.MessageTypeCheck, protocol.OptionNone, body)
	if s.server.metrics != nil {
		s.server.metrics.FramesSent.WithLabelValues(protocol.MessageTypeCheck.String()).Inc()
	}
}

func (s *Session) onReceive(msg *protocol.Message) {
	if s.server.metrics != nil {
		s.server.metrics.FramesReceived.WithLabelValues(msg.Type.String()).Inc()
	}

	switch msg.Type {
	case protocol.MessageTypeCheckReply:
		s.handleCheckReplies(msg.Body)
	case protocol.MessageTypeTestReply:
		s.enqueue(protocol.MessageTypeTestReply)
	default:
		s.server.logger.Warn("unexpected message from client",
			"session", s.ID, "type", msg.Type.String())
	}
}

// handleCheckReplies correlates each reply against every check and group
// bound to this client. An unmatched id is silently skipped; a reply
// missing its id or status is logged and dropped without affecting the
// other replies in the frame. Each accepted frame produces exactly one
// dispatcher message per reply.
func (s *Session) handleCheckReplies(body []byte) {
	replies, err := checks.DecodeReplies(body)
	if err != nil {
		s.server.logger.Error("malformed check reply", "session", s.ID, "error", err)
		if s.server.metrics != nil {
			s.server.metrics.RepliesDropped.Inc()
		}
		return
	}

	for _, reply := range replies {
		if err := s.applyReply(reply); err != nil {
			var replyErr *checks.CheckReplyError
			if errors.As(err, &replyErr) {
				s.server.logger.Error("dropping check reply",
					"session", s.ID, "error", replyErr)
				if s.server.metrics != nil {
					s.server.metrics.RepliesDropped.Inc()
				}
				continue
			}
			s.server.logger.Error("check reply failed", "session", s.ID, "error", err)
			continue
		}
		s.enqueue(protocol.MessageTypeCheckReply)
	}
}

func (s *Session) applyReply(reply checks.Reply) error {
	for _, c := range s.bound {
		if _, err := c.UpdateStatus(reply); err != nil {
			return err
		}
	}
	if s.server.metrics != nil && reply.ID != nil && reply.Status != nil {
		s.server.metrics.RepliesProcessed.WithLabelValues(reply.Status.String()).Inc()
		for _, c := range s.bound {
			for _, member := range c.AsList() {
				if member.ID == *reply.ID {
					s.server.metrics.CheckStatus.WithLabelValues(member.Name).
						Set(float64(member.CurrentStatus))
				}
			}
		}
	}
	return nil
}

// enqueue hands one dispatcher message over the queue boundary: handles
// only, never the objects themselves.
func (s *Session) enqueue(msgType protocol.MessageType) {
	s.server.dispatcher.Enqueue(plugin.Message{
		ClientAddress:  s.Address,
		ClientPort:     s.Port,
		MessageType:    msgType,
		CheckHandles:   s.checkHandles,
		ContactHandles: s.contactHandles,
	})
}

func (s *Session) onDisconnect(err error) {
	var protoErr *protocol.ProtocolError
	if errors.As(err, &protoErr) {
		s.server.logger.Error("dropping client on protocol violation",
			"session", s.ID, "address", s.Address, "error", protoErr)
		if s.server.metrics != nil {
			s.server.metrics.ProtocolErrors.Inc()
		}
	}
	s.server.detach(s)
}
