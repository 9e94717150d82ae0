package plugin

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/radarhq/radar/internal/metrics"
	"github.com/radarhq/radar/internal/protocol"
	"github.com/radarhq/radar/internal/registry"
)

// StopEventTimeout bounds how long the worker sleeps on an empty queue
// before re-checking the stop flag.
const StopEventTimeout = 200 * time.Millisecond

// DefaultQueueSize bounds the dispatcher queue when no size is given.
const DefaultQueueSize = 256

// Message is one queue item: a reply to fan out. Check and contact
// handles are opaque indices into the server's object registry; the
// worker resolves them back to live objects, so nothing is duplicated
// across the queue boundary.
type Message struct {
	ClientAddress  string
	ClientPort     int
	MessageType    protocol.MessageType
	CheckHandles   []registry.Handle
	ContactHandles []registry.Handle
}

// Dispatcher drains a bounded FIFO queue on a single worker and invokes
// every enabled plugin once per message.
type Dispatcher struct {
	queue   chan Message
	plugins *Registry
	objects *registry.Registry
	logger  *slog.Logger
	metrics *metrics.Metrics

	logRuntime bool
	stop       chan struct{}
	done       chan struct{}
}

// Option tweaks dispatcher construction.
type Option func(*Dispatcher)

// WithQueueSize bounds the queue.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Message, n)
		}
	}
}

// WithRuntimeLogging records elapsed wall-clock time per plugin
// invocation.
func WithRuntimeLogging() Option {
	return func(d *Dispatcher) { d.logRuntime = true }
}

// WithMetrics attaches Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher wires the worker to the plugin set and the object
// registry it resolves handles against.
func NewDispatcher(plugins *Registry, objects *registry.Registry, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:   make(chan Message, DefaultQueueSize),
		plugins: plugins,
		objects: objects,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue offers a message to the queue without blocking; false means the
// queue was full and the message was dropped.
func (d *Dispatcher) Enqueue(msg Message) bool {
	select {
	case d.queue <- msg:
		if d.metrics != nil {
			d.metrics.QueueDepth.Set(float64(len(d.queue)))
		}
		return true
	default:
		d.logger.Warn("plugin queue full, dropping reply",
			"address", msg.ClientAddress, "port", msg.ClientPort)
		return false
	}
}

// Stop asks the worker to exit. The worker observes the flag within
// StopEventTimeout, runs every plugin's OnShutdown exactly once in
// registration order, and then closes down.
func (d *Dispatcher) Stop() {
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	<-d.done
}

// Run is the worker loop. Scheduling is cooperative: one message at a
// time, and an empty queue parks on the stop event for at most
// StopEventTimeout.
func (d *Dispatcher) Run() {
	defer close(d.done)
	timer := time.NewTimer(StopEventTimeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-d.queue:
			d.runPlugins(msg)
		default:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(StopEventTimeout)
			select {
			case msg := <-d.queue:
				d.runPlugins(msg)
			case <-d.stop:
				d.shutdownPlugins()
				return
			case <-timer.C:
			}
		}
		if d.metrics != nil {
			d.metrics.QueueDepth.Set(float64(len(d.queue)))
		}
	}
}

func (d *Dispatcher) runPlugins(msg Message) {
	reply := Reply{
		Address:  msg.ClientAddress,
		Port:     msg.ClientPort,
		Checks:   d.objects.ResolveChecks(msg.CheckHandles),
		Contacts: d.objects.ResolveContacts(msg.ContactHandles),
	}

	for _, p := range d.plugins.All() {
		if !p.Enabled() {
			continue
		}
		d.runPlugin(p, msg.MessageType, reply)
	}
}

// runPlugin isolates one invocation: an error or panic from the plugin is
// caught and logged with the plugin's name and version, and the remaining
// plugins still run.
func (d *Dispatcher) runPlugin(p ServerPlugin, msgType protocol.MessageType, reply Reply) {
	start := time.Now()
	err := d.invoke(p, msgType, reply)
	elapsed := time.Since(start)

	if err != nil {
		perr := &PluginError{Name: p.Name(), Version: p.Version(), Err: err}
		d.logger.Error("plugin raised an error",
			"plugin", p.Name(), "version", p.Version(), "error", perr.Err)
		if d.metrics != nil {
			d.metrics.PluginErrors.WithLabelValues(p.Name()).Inc()
		}
	}
	if d.logRuntime {
		d.logger.Info("plugin runtime",
			"plugin", p.Name(), "version", p.Version(), "elapsed", elapsed)
	}
	if d.metrics != nil {
		d.metrics.PluginRuntime.WithLabelValues(p.Name()).Observe(elapsed.Seconds())
	}
}

func (d *Dispatcher) invoke(p ServerPlugin, msgType protocol.MessageType, reply Reply) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch msgType {
	case protocol.MessageTypeCheckReply:
		return p.OnCheckReply(reply)
	case protocol.MessageTypeTestReply:
		return p.OnTestReply(reply)
	default:
		d.logger.Warn("unknown message type for plugin dispatch", "type", msgType.String())
		return nil
	}
}

func (d *Dispatcher) shutdownPlugins() {
	for _, p := range d.plugins.All() {
		if err := p.OnShutdown(); err != nil {
			d.logger.Error("plugin shutdown failed",
				"plugin", p.Name(), "version", p.Version(), "error", err)
		}
	}
}
