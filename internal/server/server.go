// Package server implements the Radar server: it accepts monitoring
// clients, periodically dispatches their checks, correlates the replies
// against the monitor definitions and feeds every reply to the plugin
// dispatcher.
package server

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/config"
	"github.com/radarhq/radar/internal/contacts"
	"github.com/radarhq/radar/internal/metrics"
	"github.com/radarhq/radar/internal/monitors"
	"github.com/radarhq/radar/internal/plugin"
	"github.com/radarhq/radar/internal/protocol"
	"github.com/radarhq/radar/internal/registry"
)

// acceptTick bounds how long the accept loop blocks before re-checking
// the stop flag.
const acceptTick = 200 * time.Millisecond

// Server owns the listener, the connected sessions, the object registry
// and the plugin dispatcher.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	codec   *protocol.Codec
	defs    *monitors.Definitions
	objects *registry.Registry
	metrics *metrics.Metrics

	dispatcher *plugin.Dispatcher

	// Startup-time handle assignment; read-only afterwards.
	checkHandles   map[checks.Updatable]registry.Handle
	contactHandles map[*contacts.Contact]registry.Handle

	mu       sync.Mutex
	sessions map[string]*Session

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// New wires a server from its loaded configuration tree and plugin set.
func New(cfg *config.Config, defs *monitors.Definitions, plugins *plugin.Registry,
	m *metrics.Metrics, logger *slog.Logger) *Server {

	objects := registry.New()
	s := &Server{
		cfg:            cfg,
		logger:         logger,
		codec:          &protocol.Codec{},
		defs:           defs,
		objects:        objects,
		metrics:        m,
		checkHandles:   make(map[checks.Updatable]registry.Handle),
		contactHandles: make(map[*contacts.Contact]registry.Handle),
		sessions:       make(map[string]*Session),
		stop:           make(chan struct{}),
	}

	opts := []plugin.Option{plugin.WithQueueSize(cfg.Server.QueueSize)}
	if cfg.Server.LogRuntime {
		opts = append(opts, plugin.WithRuntimeLogging())
	}
	if m != nil {
		opts = append(opts, plugin.WithMetrics(m))
	}
	s.dispatcher = plugin.NewDispatcher(plugins, objects, logger, opts...)

	s.registerObjects()
	return s
}

// registerObjects fills the handle arena once at startup. Queues carry
// these handles instead of the objects themselves.
func (s *Server) registerObjects() {
	for _, m := range s.defs.Monitors {
		for _, c := range m.Checks {
			if _, ok := s.checkHandles[c]; !ok {
				s.checkHandles[c] = s.objects.AddCheck(c)
			}
		}
		for _, c := range m.Contacts {
			if _, ok := s.contactHandles[c]; !ok {
				s.contactHandles[c] = s.objects.AddContact(c)
			}
		}
	}
}

// Dispatcher exposes the plugin dispatcher for lifecycle wiring.
func (s *Server) Dispatcher() *plugin.Dispatcher {
	return s.dispatcher
}

// Run listens, accepts clients and drives the dispatch ticker until Stop.
func (s *Server) Run() error {
	listener, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return err
	}
	defer listener.Close()
	s.logger.Info("listening", "address", s.cfg.ListenAddr())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.dispatcher.Run()
	}()
	go func() {
		defer s.wg.Done()
		s.pollLoop()
	}()

	tcpListener, ok := listener.(*net.TCPListener)
	if !ok {
		return errors.New("listener is not TCP")
	}

	for !s.stopped() {
		tcpListener.SetDeadline(time.Now().Add(acceptTick)) //nolint:errcheck
		conn, err := tcpListener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if s.stopped() {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.attach(conn)
	}

	s.teardown()
	return nil
}

// Stop sets the stop flag; the accept loop, every session and the
// dispatcher observe it in bounded time.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Server) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// attach builds a session for a freshly accepted client and starts its
// reader. A client no monitor matches is still served (it simply gets no
// CHECK message, since there is nothing to dispatch) so misbound clients
// show up in the logs rather than vanish.
func (s *Server) attach(conn net.Conn) {
	session := newSession(s, conn)

	s.mu.Lock()
	s.sessions[session.ID] = session
	count := len(s.sessions)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveClients.Set(float64(count))
	}
	s.logger.Info("client connected",
		"session", session.ID, "address", session.Address, "port", session.Port,
		"monitors", len(session.monitors))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		session.run()
	}()

	// First dispatch immediately; the poll loop takes it from there.
	session.dispatchChecks()
}

func (s *Server) detach(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session.ID)
	count := len(s.sessions)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ActiveClients.Set(float64(count))
	}
	s.logger.Info("client disconnected", "session", session.ID, "address", session.Address)
}

// pollLoop emits a CHECK message to every connected client each polling
// interval.
func (s *Server) pollLoop() {
	ticker := time.NewTicker(s.cfg.PollingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, session := range s.snapshotSessions() {
				session.dispatchChecks()
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Server) snapshotSessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// Sessions returns the connected client descriptors for the status API.
func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.info())
	}
	return out
}

// Definitions exposes the loaded configuration tree for the status API.
func (s *Server) Definitions() *monitors.Definitions {
	return s.defs
}

func (s *Server) teardown() {
	for _, session := range s.snapshotSessions() {
		session.stop()
	}
	s.dispatcher.Stop()
}
