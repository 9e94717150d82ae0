package client

import (
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/config"
	"github.com/radarhq/radar/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func testConfig(addr string, reconnect bool) *config.Config {
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	cfg := &config.Config{Reconnect: reconnect}
	cfg.Connect.To = host
	cfg.Connect.Port = port
	return cfg
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o755)
}

func checkRunOptions(dir string) checks.RunOptions {
	return checks.RunOptions{ChecksDir: dir}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestReconnectDelaysRotate(t *testing.T) {
	c := New(testConfig("127.0.0.1:1", true), testLogger())
	c.delays = []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}

	c.sleep()
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 3 * time.Millisecond, time.Millisecond}, c.delays)

	c.sleep()
	assert.Equal(t, []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}, c.delays)

	c.sleep()
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}, c.delays)
}

func TestDefaultReconnectCycle(t *testing.T) {
	assert.Equal(t,
		[]time.Duration{5 * time.Second, 15 * time.Second, 60 * time.Second},
		ReconnectDelays)
}

func TestSingleFailureStopsWhenReconnectOff(t *testing.T) {
	c := New(testConfig(freeAddr(t), false), testLogger())

	go c.Run()
	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop after a single failed connect")
	}
	assert.Equal(t, StateStopped, c.State())
}

func TestStopInterruptsReconnectSleep(t *testing.T) {
	c := New(testConfig(freeAddr(t), true), testLogger())
	c.delays = []time.Duration{time.Hour, time.Hour, time.Hour}

	go c.Run()
	// Let the first connect fail and the sleep begin.
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	c.Stop()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StateStopped, c.State())
}

func TestOnReceiveDropsOldestOnOverflow(t *testing.T) {
	c := New(testConfig("127.0.0.1:1", true), testLogger())
	c.outbound = make(chan Incoming, 2)

	c.onReceive(&protocol.Message{Type: protocol.MessageTypeCheck, Body: []byte(`1`)})
	c.onReceive(&protocol.Message{Type: protocol.MessageTypeCheck, Body: []byte(`2`)})
	c.onReceive(&protocol.Message{Type: protocol.MessageTypeCheck, Body: []byte(`3`)})

	first := <-c.outbound
	second := <-c.outbound
	assert.Equal(t, json.RawMessage(`2`), first.Body)
	assert.Equal(t, json.RawMessage(`3`), second.Body)
	assert.Empty(t, c.outbound)
}

func TestClientStateNames(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "STOPPED", StateStopped.String())
}

// Covers the full client pipeline: a stub server dispatches one check,
// the executor runs it locally and the reply comes back on the wire.
func TestClientExecutesDispatchedChecks(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	dir := t.TempDir()
	script := "#!/bin/sh\necho '{\"status\": \"OK\", \"details\": \"fine\"}'\n"
	require.NoError(t, writeFile(dir+"/ok.sh", script))

	cfg := testConfig(listener.Addr().String(), true)
	cfg.Checks = dir

	c := New(cfg, testLogger())
	executor := NewExecutor(c, checkRunOptions(dir), testLogger())
	go c.Run()
	go executor.Run()
	defer func() {
		c.Stop()
		executor.Stop()
	}()

	server, err := listener.Accept()
	require.NoError(t, err)
	defer server.Close()

	codec := &protocol.Codec{}
	require.NoError(t, codec.Send(server, protocol.MessageTypeCheck, protocol.OptionNone,
		[]byte(`[{"id":7,"path":"ok.sh"}]`)))

	server.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	msg, err := codec.Receive(server)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeCheckReply, msg.Type)

	var replies []map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Body, &replies))
	require.Len(t, replies, 1)
	assert.Equal(t, float64(7), replies[0]["id"])
	assert.Equal(t, float64(0), replies[0]["status"])
	assert.Equal(t, "fine", replies[0]["details"])
}

func TestClientEchoesTestMessages(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	cfg := testConfig(listener.Addr().String(), true)
	c := New(cfg, testLogger())
	executor := NewExecutor(c, checkRunOptions(t.TempDir()), testLogger())
	go c.Run()
	go executor.Run()
	defer func() {
		c.Stop()
		executor.Stop()
	}()

	server, err := listener.Accept()
	require.NoError(t, err)
	defer server.Close()

	codec := &protocol.Codec{}
	require.NoError(t, codec.Send(server, protocol.MessageTypeTest, protocol.OptionNone, []byte(`{"ping":1}`)))

	server.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	msg, err := codec.Receive(server)
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageTypeTestReply, msg.Type)
	assert.Equal(t, []byte(`{"ping":1}`), msg.Body)
}
