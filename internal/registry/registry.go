// Package registry is the server-owned arena behind the handle-passing
// scheme: queues between the server and the plugin dispatcher carry plain
// integer handles, and the dispatcher resolves them back to live objects
// under a read lock. Nothing is ever duplicated across the queue.
package registry

import (
	"sync"

	"github.com/radarhq/radar/internal/checks"
	"github.com/radarhq/radar/internal/contacts"
)

// Handle is an opaque index into the registry.
type Handle int64

// Registry maps handles to the server's live check and contact objects.
// Registration happens once at server startup; resolution happens on the
// dispatcher worker.
type Registry struct {
	mu       sync.RWMutex
	next     Handle
	checks   map[Handle]checks.Updatable
	contacts map[Handle]*contacts.Contact
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		checks:   make(map[Handle]checks.Updatable),
		contacts: make(map[Handle]*contacts.Contact),
	}
}

// AddCheck registers a check or check group and returns its handle.
func (r *Registry) AddCheck(c checks.Updatable) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.checks[h] = c
	return h
}

// AddContact registers a contact and returns its handle.
func (r *Registry) AddContact(c *contacts.Contact) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.contacts[h] = c
	return h
}

// ResolveChecks dereferences check handles, flattening groups into their
// member checks. Stale handles resolve to nothing.
func (r *Registry) ResolveChecks(handles []Handle) []*checks.Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var resolved []*checks.Check
	for _, h := range handles {
		if c, ok := r.checks[h]; ok {
			resolved = append(resolved, c.AsList()...)
		}
	}
	return resolved
}

// ResolveContacts dereferences contact handles.
func (r *Registry) ResolveContacts(handles []Handle) []*contacts.Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var resolved []*contacts.Contact
	for _, h := range handles {
		if c, ok := r.contacts[h]; ok {
			resolved = append(resolved, c)
		}
	}
	return resolved
}

// Remove drops a handle; subsequent resolution skips it.
func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.checks, h)
	delete(r.contacts, h)
}
