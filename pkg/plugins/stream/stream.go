// Package stream broadcasts every check reply to connected websocket
// clients, giving dashboards a live feed of status changes.
package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/radarhq/radar/internal/plugin"
)

// Event is one broadcast record: a single check's new state.
type Event struct {
	Address        string      `json:"address"`
	Port           int         `json:"port"`
	Check          string      `json:"check"`
	Status         int         `json:"status"`
	PreviousStatus int         `json:"previous_status"`
	Details        string      `json:"details,omitempty"`
	Data           interface{} `json:"data,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// Plugin runs a websocket hub on its own listener and fans every reply
// out to all connected clients.
type Plugin struct {
	plugin.Base

	addr     string
	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	srv      *http.Server
}

// New creates the plugin; the listener starts in Configure.
func New(addr string) *Plugin {
	return &Plugin{
		Base:    plugin.NewBase(),
		addr:    addr,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (p *Plugin) Name() string    { return "reply-stream" }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Configure(logger *slog.Logger) error {
	if err := p.Base.Configure(logger); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", p.handleWebSocket)
	p.srv = &http.Server{Addr: p.addr, Handler: mux}

	go func() {
		if err := p.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.Logger.Error("stream listener failed", "error", err)
		}
	}()
	p.Logger.Info("reply stream listening", "address", p.addr)
	return nil
}

func (p *Plugin) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		p.Logger.Error("websocket upgrade failed", "error", err)
		return
	}

	p.mu.Lock()
	p.clients[conn] = true
	total := len(p.clients)
	p.mu.Unlock()
	p.Logger.Info("stream client connected", "total", total)

	// Reads only serve to detect the close.
	go func() {
		defer p.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (p *Plugin) drop(conn *websocket.Conn) {
	p.mu.Lock()
	if p.clients[conn] {
		delete(p.clients, conn)
		conn.Close()
	}
	p.mu.Unlock()
}

func (p *Plugin) OnCheckReply(reply plugin.Reply) error {
	now := time.Now()
	for _, c := range reply.Checks {
		event := Event{
			Address:        reply.Address,
			Port:           reply.Port,
			Check:          c.Name,
			Status:         int(c.CurrentStatus),
			PreviousStatus: int(c.PreviousStatus),
			Details:        c.Details,
			Data:           c.Data,
			Timestamp:      now,
		}
		p.broadcast(event)
	}
	return nil
}

func (p *Plugin) broadcast(event Event) {
	p.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(p.clients))
	for conn := range p.clients {
		conns = append(conns, conn)
	}
	p.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			p.Logger.Warn("stream write failed, dropping client", "error", err)
			p.drop(conn)
		}
	}
}

func (p *Plugin) OnShutdown() error {
	p.mu.Lock()
	for conn := range p.clients {
		conn.Close()
	}
	p.clients = map[*websocket.Conn]bool{}
	p.mu.Unlock()

	if p.srv != nil {
		return p.srv.Close()
	}
	return nil
}
