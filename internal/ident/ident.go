// Package ident provides process-wide sequential identifiers and the
// shared base embedded by every identifier-bearing Radar entity.
package ident

import "sync/atomic"

// counter backs every SequentialIdGenerator in the process. Two distinct
// live entities never share an id, no matter which generator assigned it.
var counter int64 = -1

// SequentialIdGenerator hands out monotonically increasing non-negative
// identifiers from a single shared counter. The zero value is ready to use.
type SequentialIdGenerator struct{}

// Generate returns the next process-unique identifier.
func (SequentialIdGenerator) Generate() int64 {
	return atomic.AddInt64(&counter, 1)
}

// Switchable is the base for entities carrying an auto-assigned id and an
// enabled flag (checks, check groups, contacts, plugins).
type Switchable struct {
	ID      int64
	Enabled bool
}

// NewSwitchable assigns a fresh id and starts enabled.
func NewSwitchable() Switchable {
	return Switchable{ID: SequentialIdGenerator{}.Generate(), Enabled: true}
}

// Enable flips the entity on.
func (s *Switchable) Enable() { s.Enabled = true }

// Disable flips the entity off.
func (s *Switchable) Disable() { s.Enabled = false }

// Dict is the projection type used by every serialization path.
type Dict = map[string]interface{}

// ToDict projects the named fields through the supplied getter. Entities
// pass a getter covering their own attributes on top of id/enabled.
func (s *Switchable) ToDict(fields []string, get func(string) (interface{}, bool)) Dict {
	d := make(Dict, len(fields))
	for _, f := range fields {
		switch f {
		case "id":
			d["id"] = s.ID
		case "enabled":
			d["enabled"] = s.Enabled
		default:
			if v, ok := get(f); ok {
				d[f] = v
			}
		}
	}
	return d
}
