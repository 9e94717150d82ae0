package plugin

import (
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/contacts"
	"github.com/radarhq/radar/internal/protocol"
	"github.com/radarhq/radar/internal/registry"
)

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nullWriter{}, nil))
}

// recordingPlugin captures every callback invocation; it can be told to
// fail or panic on check replies.
type recordingPlugin struct {
	Base
	name string

	fail  bool
	panic bool

	mu           sync.Mutex
	checkReplies []Reply
	testReplies  []Reply
	shutdowns    int
	shutdownLog  *[]string
}

func newRecordingPlugin(name string, shutdownLog *[]string) *recordingPlugin {
	return &recordingPlugin{Base: NewBase(), name: name, shutdownLog: shutdownLog}
}

func (p *recordingPlugin) Name() string    { return p.name }
func (p *recordingPlugin) Version() string { return "1.0.0" }

func (p *recordingPlugin) OnCheckReply(reply Reply) error {
	p.mu.Lock()
	p.checkReplies = append(p.checkReplies, reply)
	p.mu.Unlock()
	if p.panic {
		panic("plugin exploded")
	}
	if p.fail {
		return errors.New("plugin failed")
	}
	return nil
}

func (p *recordingPlugin) OnTestReply(reply Reply) error {
	p.mu.Lock()
	p.testReplies = append(p.testReplies, reply)
	p.mu.Unlock()
	return nil
}

func (p *recordingPlugin) OnShutdown() error {
	p.mu.Lock()
	p.shutdowns++
	if p.shutdownLog != nil {
		*p.shutdownLog = append(*p.shutdownLog, p.name)
	}
	p.mu.Unlock()
	return nil
}

func (p *recordingPlugin) checkReplyCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.checkReplies)
}

func (p *recordingPlugin) lastCheckReply() Reply {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkReplies[len(p.checkReplies)-1]
}

func testObjects(t *testing.T) (*registry.Registry, []registry.Handle, []registry.Handle, *checks.Check) {
	t.Helper()
	objects := registry.New()

	c, err := checks.NewCheck("Load average", "load_average.py", "")
	require.NoError(t, err)
	contact, err := contacts.NewContact("ops", "ops@example.com", "")
	require.NoError(t, err)

	return objects,
		[]registry.Handle{objects.AddCheck(c)},
		[]registry.Handle{objects.AddContact(contact)},
		c
}

func startDispatcher(t *testing.T, d *Dispatcher) {
	t.Helper()
	go d.Run()
	t.Cleanup(d.Stop)
}

func TestDispatcherFansOutToEveryEnabledPlugin(t *testing.T) {
	plugins := NewRegistry()
	a := newRecordingPlugin("a", nil)
	b := newRecordingPlugin("b", nil)
	require.NoError(t, plugins.Register(a))
	require.NoError(t, plugins.Register(b))

	objects, checkHandles, contactHandles, c := testObjects(t)
	d := NewDispatcher(plugins, objects, testLogger())
	startDispatcher(t, d)

	require.True(t, d.Enqueue(Message{
		ClientAddress:  "10.0.0.7",
		ClientPort:     41000,
		MessageType:    protocol.MessageTypeCheckReply,
		CheckHandles:   checkHandles,
		ContactHandles: contactHandles,
	}))

	require.Eventually(t, func() bool {
		return a.checkReplyCount() == 1 && b.checkReplyCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	reply := b.lastCheckReply()
	assert.Equal(t, "10.0.0.7", reply.Address)
	assert.Equal(t, 41000, reply.Port)
	require.Len(t, reply.Checks, 1)
	assert.Same(t, c, reply.Checks[0])
	assert.Len(t, reply.Contacts, 1)
}

func TestDispatcherIsolatesFailingPlugin(t *testing.T) {
	plugins := NewRegistry()
	failing := newRecordingPlugin("failing", nil)
	failing.fail = true
	healthy := newRecordingPlugin("healthy", nil)
	require.NoError(t, plugins.Register(failing))
	require.NoError(t, plugins.Register(healthy))

	objects, checkHandles, contactHandles, _ := testObjects(t)
	d := NewDispatcher(plugins, objects, testLogger())
	startDispatcher(t, d)

	d.Enqueue(Message{
		ClientAddress:  "10.0.0.7",
		ClientPort:     41000,
		MessageType:    protocol.MessageTypeCheckReply,
		CheckHandles:   checkHandles,
		ContactHandles: contactHandles,
	})

	require.Eventually(t, func() bool { return healthy.checkReplyCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, failing.checkReplyCount())

	// The same tuple reached the healthy plugin despite the failure.
	assert.Equal(t, healthy.lastCheckReply().Address, failing.lastCheckReply().Address)
}

func TestDispatcherIsolatesPanickingPlugin(t *testing.T) {
	plugins := NewRegistry()
	panicking := newRecordingPlugin("panicking", nil)
	panicking.panic = true
	healthy := newRecordingPlugin("healthy", nil)
	require.NoError(t, plugins.Register(panicking))
	require.NoError(t, plugins.Register(healthy))

	objects, checkHandles, contactHandles, _ := testObjects(t)
	d := NewDispatcher(plugins, objects, testLogger())
	startDispatcher(t, d)

	d.Enqueue(Message{
		MessageType:    protocol.MessageTypeCheckReply,
		CheckHandles:   checkHandles,
		ContactHandles: contactHandles,
	})

	require.Eventually(t, func() bool { return healthy.checkReplyCount() == 1 },
		2*time.Second, 10*time.Millisecond)
}

func TestDispatcherSkipsDisabledPlugins(t *testing.T) {
	plugins := NewRegistry()
	disabled := newRecordingPlugin("disabled", nil)
	disabled.Disable()
	enabled := newRecordingPlugin("enabled", nil)
	require.NoError(t, plugins.Register(disabled))
	require.NoError(t, plugins.Register(enabled))

	objects, checkHandles, contactHandles, _ := testObjects(t)
	d := NewDispatcher(plugins, objects, testLogger())
	startDispatcher(t, d)

	d.Enqueue(Message{
		MessageType:    protocol.MessageTypeCheckReply,
		CheckHandles:   checkHandles,
		ContactHandles: contactHandles,
	})

	require.Eventually(t, func() bool { return enabled.checkReplyCount() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Zero(t, disabled.checkReplyCount())
}

func TestDispatcherRoutesTestReplies(t *testing.T) {
	plugins := NewRegistry()
	p := newRecordingPlugin("p", nil)
	require.NoError(t, plugins.Register(p))

	objects, checkHandles, contactHandles, _ := testObjects(t)
	d := NewDispatcher(plugins, objects, testLogger())
	startDispatcher(t, d)

	d.Enqueue(Message{
		MessageType:    protocol.MessageTypeTestReply,
		CheckHandles:   checkHandles,
		ContactHandles: contactHandles,
	})

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.testReplies) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, p.checkReplyCount())
}

func TestDispatcherShutsDownPluginsOnceInOrder(t *testing.T) {
	var order []string
	plugins := NewRegistry()
	a := newRecordingPlugin("a", &order)
	b := newRecordingPlugin("b", &order)
	require.NoError(t, plugins.Register(a))
	require.NoError(t, plugins.Register(b))

	objects := registry.New()
	d := NewDispatcher(plugins, objects, testLogger())
	go d.Run()
	d.Stop()

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, a.shutdowns)
	assert.Equal(t, 1, b.shutdowns)
}

func TestEnqueueDropsWhenQueueFull(t *testing.T) {
	plugins := NewRegistry()
	objects := registry.New()
	d := NewDispatcher(plugins, objects, testLogger(), WithQueueSize(1))
	// Worker not running: the queue can only fill.

	assert.True(t, d.Enqueue(Message{MessageType: protocol.MessageTypeCheckReply}))
	assert.False(t, d.Enqueue(Message{MessageType: protocol.MessageTypeCheckReply}))
}
