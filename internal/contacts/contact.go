// Package contacts models the notification targets bound to monitors.
// Plugins receive the contacts of a client alongside its checks on every
// reply.
package contacts

import (
	"hash/fnv"

	"github.com/radarhq/radar/internal/ident"
)

// ContactError reports an invalid contact or contact group definition.
type ContactError struct {
	Reason string
}

func (e *ContactError) Error() string {
	return "contact error: " + e.Reason
}

// Key is the immutable identity of a contact: (name, email). The enabled
// flag and phone number do not participate.
type Key struct {
	Name  string
	Email string
}

// Contact is a single notification target.
type Contact struct {
	ident.Switchable

	Name  string
	Email string
	Phone string
}

// NewContact builds a contact; name and email are required.
func NewContact(name, email, phone string) (*Contact, error) {
	if name == "" || email == "" {
		return nil, &ContactError{Reason: "missing name and/or email from contact definition"}
	}
	return &Contact{Switchable: ident.NewSwitchable(), Name: name, Email: email, Phone: phone}, nil
}

// Key returns the (name, email) identity pair.
func (c *Contact) Key() Key {
	return Key{Name: c.Name, Email: c.Email}
}

// Hash derives a stable identity hash from the immutable fields.
func (c *Contact) Hash() uint64 {
	return hashString(c.Name) ^ hashString(c.Email)
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// ToDict is the projection used by status endpoints.
func (c *Contact) ToDict() ident.Dict {
	return c.Switchable.ToDict([]string{"id", "name", "email", "phone", "enabled"},
		func(f string) (interface{}, bool) {
			switch f {
			case "name":
				return c.Name, true
			case "email":
				return c.Email, true
			case "phone":
				return c.Phone, true
			}
			return nil, false
		})
}

// AsList lets a single contact and a contact group share the dispatch
// path.
func (c *Contact) AsList() []*Contact {
	return []*Contact{c}
}

// ContactGroup aggregates contacts with set semantics keyed by (name,
// email); member set fixed at construction.
type ContactGroup struct {
	ident.Switchable

	Name     string
	contacts map[Key]*Contact
}

// NewContactGroup builds a group from its members, dropping duplicates.
func NewContactGroup(name string, members []*Contact) (*ContactGroup, error) {
	if name == "" || len(members) == 0 {
		return nil, &ContactError{Reason: "missing name and/or contacts from contact group definition"}
	}
	g := &ContactGroup{Switchable: ident.NewSwitchable(), Name: name, contacts: make(map[Key]*Contact, len(members))}
	for _, c := range members {
		g.contacts[c.Key()] = c
	}
	return g, nil
}

// AsList returns the members, unordered.
func (g *ContactGroup) AsList() []*Contact {
	members := make([]*Contact, 0, len(g.contacts))
	for _, c := range g.contacts {
		members = append(members, c)
	}
	return members
}

// Size returns the member count after deduplication.
func (g *ContactGroup) Size() int {
	return len(g.contacts)
}
