package client

import (
	"encoding/json"
	"log/slog"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/ident"
	"github.com/radarhq/radar/internal/protocol"
)

// checkRequest is one element of a CHECK body as dispatched by the
// server: the server-side id plus what to run.
type checkRequest struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
	Args string `json:"args"`
}

// Executor is the client's second worker: it drains the outbound queue of
// decoded messages, runs the requested checks locally and feeds the
// replies back through the inbound queue.
type Executor struct {
	client *Client
	opts   checks.RunOptions
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

// NewExecutor wires an executor to its client's queues.
func NewExecutor(c *Client, opts checks.RunOptions, logger *slog.Logger) *Executor {
	return &Executor{
		client: c,
		opts:   opts,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Stop asks the worker to exit after the message in flight.
func (e *Executor) Stop() {
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	<-e.done
}

// Run processes messages until stopped.
func (e *Executor) Run() {
	defer close(e.done)
	for {
		select {
		case msg := <-e.client.Outbound():
			e.handle(msg)
		case <-e.stop:
			return
		}
	}
}

func (e *Executor) handle(msg Incoming) {
	switch msg.Type {
	case protocol.MessageTypeCheck:
		e.runChecks(msg.Body)
	case protocol.MessageTypeTest:
		// A test round-trips untouched; it exists so plugins can filter.
		e.client.EnqueueReply(protocol.MessageTypeTestReply, msg.Body)
	default:
		e.logger.Warn("unexpected message from server", "type", msg.Type.String())
	}
}

// runChecks executes every requested check and queues one CHECK REPLY
// frame per check. A request the client can't even model (empty path)
// is answered with a status=ERROR reply so the server sees the failure.
func (e *Executor) runChecks(body []byte) {
	var requests []checkRequest
	if err := json.Unmarshal(body, &requests); err != nil {
		e.logger.Error("malformed check dispatch", "error", err)
		return
	}

	for _, req := range requests {
		reply := e.runOne(req)
		payload, err := json.Marshal([]ident.Dict{reply})
		if err != nil {
			e.logger.Error("can't serialize check reply", "id", req.ID, "error", err)
			continue
		}
		e.client.EnqueueReply(protocol.MessageTypeCheckReply, payload)
	}
}

func (e *Executor) runOne(req checkRequest) ident.Dict {
	chk, err := checks.NewCheck(req.Path, req.Path, req.Args)
	if err != nil {
		return ident.Dict{
			"id":      req.ID,
			"status":  int(checks.StatusError),
			"details": err.Error(),
		}
	}
	// The reply must carry the server's id for the check, not the local
	// one assigned at construction.
	chk.ID = req.ID
	chk.Run(e.opts)
	return chk.ToCheckReplyDict()
}
