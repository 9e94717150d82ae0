// Package plugin implements the server-side plugin surface: the plugin
// contract, the registry holding the configured plugin set, and the
// dispatcher worker fanning every reply out to each enabled plugin.
package plugin

import (
	"fmt"
	"log/slog"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/contacts"
	"github.com/radarhq/radar/internal/ident"
)

// PluginError reports a failure raised by a plugin callback. The
// dispatcher catches it, logs it with the plugin's name and version, and
// moves on; it never stops the fan-out.
type PluginError struct {
	Name    string
	Version string
	Err     error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin %s %s raised an error: %v", e.Name, e.Version, e.Err)
}

func (e *PluginError) Unwrap() error {
	return e.Err
}

// Reply is the argument bundle handed to every plugin callback: which
// client answered, and the live checks and contacts the reply resolved to.
type Reply struct {
	Address  string
	Port     int
	Checks   []*checks.Check
	Contacts []*contacts.Contact
}

// ServerPlugin is the contract every Radar server plugin implements.
// Configure runs once before the first reply; OnShutdown exactly once at
// tear-down. Identity is (name, version).
type ServerPlugin interface {
	Name() string
	Version() string
	Enabled() bool
	Configure(logger *slog.Logger) error
	OnCheckReply(reply Reply) error
	OnTestReply(reply Reply) error
	OnShutdown() error
}

// Base carries the id, enabled flag and logger shared by plugin
// implementations. Embed it and override the callbacks you care about.
type Base struct {
	ID      int64
	Logger  *slog.Logger
	enabled bool
}

// NewBase assigns a fresh id and starts enabled.
func NewBase() Base {
	return Base{ID: ident.SequentialIdGenerator{}.Generate(), enabled: true}
}

func (b *Base) Configure(logger *slog.Logger) error {
	b.Logger = logger
	return nil
}

func (b *Base) Enabled() bool { return b.enabled }
func (b *Base) Enable()       { b.enabled = true }
func (b *Base) Disable()      { b.enabled = false }

func (b *Base) OnCheckReply(Reply) error { return nil }
func (b *Base) OnTestReply(Reply) error  { return nil }
func (b *Base) OnShutdown() error        { return nil }
