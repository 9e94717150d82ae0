// Package monitors binds checks and contacts to the clients they apply
// to. A monitor names host patterns; the server resolves, per connected
// client, the union of checks and contacts of every matching monitor.
package monitors

import (
	"path"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/contacts"
	"github.com/radarhq/radar/internal/ident"
)

// MonitorError reports an invalid monitor definition.
type MonitorError struct {
	Reason string
}

func (e *MonitorError) Error() string {
	return "monitor error: " + e.Reason
}

// Monitor ties host patterns to the checks to run there and the contacts
// to notify.
type Monitor struct {
	ident.Switchable

	Name     string
	Hosts    []string
	Checks   []checks.Updatable
	Contacts []*contacts.Contact
}

// NewMonitor builds a monitor; a name, at least one host pattern and at
// least one check are required.
func NewMonitor(name string, hosts []string, watched []checks.Updatable, notified []*contacts.Contact) (*Monitor, error) {
	if name == "" || len(hosts) == 0 || len(watched) == 0 {
		return nil, &MonitorError{Reason: "missing name, hosts and/or checks from monitor definition"}
	}
	return &Monitor{
		Switchable: ident.NewSwitchable(),
		Name:       name,
		Hosts:      hosts,
		Checks:     watched,
		Contacts:   notified,
	}, nil
}

// Matches reports whether the client address falls under any of the
// monitor's host patterns. Patterns are shell globs ("10.0.*", "web-?")
// with plain strings matching exactly.
func (m *Monitor) Matches(address string) bool {
	if !m.Enabled {
		return false
	}
	for _, pattern := range m.Hosts {
		if ok, err := path.Match(pattern, address); err == nil && ok {
			return true
		}
	}
	return false
}
