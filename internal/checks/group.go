package checks

import (
	"github.com/radarhq/radar/internal/ident"
)

// Updatable is satisfied by both Check and CheckGroup; the server
// correlates replies against either without caring which it holds.
type Updatable interface {
	UpdateStatus(reply Reply) (bool, error)
	ToCheckDict() []ident.Dict
	AsList() []*Check
}

// CheckGroup aggregates checks with set semantics: membership is keyed by
// the (name, path, args) triple, so duplicates collapse to one entry.
// The member set is fixed at construction; contained checks still mutate
// their own status.
type CheckGroup struct {
	ident.Switchable

	Name   string
	checks map[Key]*Check
	order  []Key
}

// NewCheckGroup builds a group from its member checks, dropping
// duplicates. Name and at least one check are required.
func NewCheckGroup(name string, members []*Check) (*CheckGroup, error) {
	if name == "" || len(members) == 0 {
		return nil, &CheckError{Reason: "missing name and/or checks from check group definition"}
	}

	g := &CheckGroup{
		Switchable: ident.NewSwitchable(),
		Name:       name,
		checks:     make(map[Key]*Check, len(members)),
	}
	for _, c := range members {
		if _, dup := g.checks[c.Key()]; dup {
			continue
		}
		g.checks[c.Key()] = c
		g.order = append(g.order, c.Key())
	}
	return g, nil
}

// Size returns the member count after deduplication.
func (g *CheckGroup) Size() int {
	return len(g.checks)
}

// UpdateStatus delegates to every member; true when any member accepted.
// Reply errors surface so the caller can log and drop the reply.
func (g *CheckGroup) UpdateStatus(reply Reply) (bool, error) {
	updated := false
	for _, c := range g.checks {
		ok, err := c.UpdateStatus(reply)
		if err != nil {
			return updated, err
		}
		updated = updated || ok
	}
	return updated, nil
}

// ToCheckDict flattens every member's dispatch projection into one list.
func (g *CheckGroup) ToCheckDict() []ident.Dict {
	var dicts []ident.Dict
	for _, key := range g.order {
		dicts = append(dicts, g.checks[key].ToCheckDict()...)
	}
	return dicts
}

// ToDict is the full projection used by status endpoints.
func (g *CheckGroup) ToDict() ident.Dict {
	d := g.Switchable.ToDict([]string{"id", "name", "enabled"}, func(f string) (interface{}, bool) {
		if f == "name" {
			return g.Name, true
		}
		return nil, false
	})
	var members []ident.Dict
	for _, key := range g.order {
		members = append(members, g.checks[key].ToDict())
	}
	d["checks"] = members
	return d
}

// AsList returns the members, unordered.
func (g *CheckGroup) AsList() []*Check {
	members := make([]*Check, 0, len(g.checks))
	for _, c := range g.checks {
		members = append(members, c)
	}
	return members
}

// Equal compares (name, set-of-members); member order never matters.
func (g *CheckGroup) Equal(other *CheckGroup) bool {
	if g.Name != other.Name || len(g.checks) != len(other.checks) {
		return false
	}
	for key := range g.checks {
		if _, ok := other.checks[key]; !ok {
			return false
		}
	}
	return true
}

// Hash folds the member hashes into the group name's hash; a group with a
// single member reduces to hash(name) XOR hash(member).
func (g *CheckGroup) Hash() uint64 {
	h := hashString(g.Name)
	for _, c := range g.checks {
		h ^= c.Hash()
	}
	return h
}
