// Package checks models the probe units a Radar server addresses on its
// clients: single checks, set-semantics check groups, their status life
// cycle and their local execution on the client side.
package checks

import (
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/radarhq/radar/internal/ident"
)

// CheckError reports an invalid check definition or a failed execution.
// Execution errors never propagate past the check: Run converts them to a
// status=ERROR outcome with the error text in the details.
type CheckError struct {
	Reason string
}

func (e *CheckError) Error() string {
	return "check error: " + e.Reason
}

// CheckReplyError reports an inbound reply missing its id or status. The
// reply is dropped; other replies in the same frame still process.
type CheckReplyError struct {
	Reason string
}

func (e *CheckReplyError) Error() string {
	return "check reply error: " + e.Reason
}

// Reply is the decoded form of one element of a CHECK REPLY body.
// ID and Status are pointers so a missing field is distinguishable from a
// zero value.
type Reply struct {
	ID      *int64      `json:"id"`
	Status  *Status     `json:"status"`
	Details string      `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// Key is the immutable identity of a check. Two checks with equal keys are
// the same check regardless of their ids; this is what lets a server
// configuration reload recognize an already-known check. Enabled state and
// details deliberately do not participate.
type Key struct {
	Name string
	Path string
	Args string
}

// Check is a single probe: executed on a client, correlated on the server.
type Check struct {
	ident.Switchable

	Name string
	Path string
	Args string

	CurrentStatus  Status
	PreviousStatus Status
	Details        string
	Data           interface{}
}

// NewCheck builds a check with both statuses initialized to UNKNOWN.
// Name and path must be non-empty.
func NewCheck(name, path, args string) (*Check, error) {
	if name == "" || path == "" {
		return nil, &CheckError{Reason: "missing name and/or path from check definition"}
	}
	return &Check{
		Switchable:     ident.NewSwitchable(),
		Name:           name,
		Path:           path,
		Args:           args,
		CurrentStatus:  StatusUnknown,
		PreviousStatus: StatusUnknown,
	}, nil
}

// Key returns the (name, path, args) identity triple.
func (c *Check) Key() Key {
	return Key{Name: c.Name, Path: c.Path, Args: c.Args}
}

// Equal compares identity: the (name, path, args) triple only.
func (c *Check) Equal(other *Check) bool {
	return c.Key() == other.Key()
}

// Hash derives a stable identity hash from the immutable fields.
func (c *Check) Hash() uint64 {
	return hashString(c.Name) ^ hashString(c.Path) ^ hashString(c.Args)
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// UpdateStatus accepts a reply describing this check's new status. The
// reply is applied only when its id matches, the status is a known value
// and the check is enabled; an id mismatch or a disabled check returns
// false without touching the check. A reply missing its id or status is a
// CheckReplyError.
func (c *Check) UpdateStatus(reply Reply) (bool, error) {
	if reply.ID == nil || reply.Status == nil {
		return false, &CheckReplyError{Reason: "missing id and/or status from check reply"}
	}
	if *reply.ID != c.ID || !reply.Status.Valid() || !c.Enabled {
		return false, nil
	}

	c.PreviousStatus = c.CurrentStatus
	c.CurrentStatus = *reply.Status
	c.Details = reply.Details
	c.Data = reply.Data
	return true, nil
}

// ToDict is the full projection used by status endpoints.
func (c *Check) ToDict() ident.Dict {
	return c.Switchable.ToDict(
		[]string{"id", "name", "path", "args", "current_status", "previous_status", "details", "data", "enabled"},
		func(f string) (interface{}, bool) {
			switch f {
			case "name":
				return c.Name, true
			case "path":
				return c.Path, true
			case "args":
				return c.Args, true
			case "current_status":
				return int(c.CurrentStatus), true
			case "previous_status":
				return int(c.PreviousStatus), true
			case "details":
				return c.Details, true
			case "data":
				return c.Data, true
			}
			return nil, false
		},
	)
}

// ToCheckDict is the projection dispatched to the client: {id, path,
// args?}, args omitted when empty, wrapped in a single-element list.
func (c *Check) ToCheckDict() []ident.Dict {
	d := ident.Dict{"id": c.ID, "path": c.Path}
	if c.Args != "" {
		d["args"] = c.Args
	}
	return []ident.Dict{d}
}

// ToCheckReplyDict is the projection the client sends back to the server:
// {id, status, details?, data?}.
func (c *Check) ToCheckReplyDict() ident.Dict {
	d := ident.Dict{"id": c.ID, "status": int(c.CurrentStatus)}
	if c.Details != "" {
		d["details"] = c.Details
	}
	if c.Data != nil {
		d["data"] = c.Data
	}
	return d
}

// AsList lets a single check and a check group share the dispatch path.
func (c *Check) AsList() []*Check {
	return []*Check{c}
}

func (c *Check) String() string {
	return fmt.Sprintf("check %q (id %d, status %s)", c.Name, c.ID, c.CurrentStatus)
}

// DecodeReplies parses a CHECK REPLY body: an array of reply dicts.
func DecodeReplies(body []byte) ([]Reply, error) {
	var replies []Reply
	if err := json.Unmarshal(body, &replies); err != nil {
		return nil, &CheckReplyError{Reason: fmt.Sprintf("malformed check reply body: %v", err)}
	}
	return replies, nil
}
