package coef

import (
	"fmt"
	"sort"
	"sync"
)

// LatestID resolves to the newest stable table in a registry.
const LatestID = "latest"

// Registry indexes tables by ID and tracks which one is active.
// Tables are swapped wholesale; a registered *Table is never modified.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Table
	active string
}

// NewRegistry validates and registers tables. No table is active until
// Activate is called.
func NewRegistry(tables ...*Table) (*Registry, error) {
	r := &Registry{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Builtin returns a registry of the compiled-in tables with the newest
// stable snapshot active.
func Builtin() *Registry {
	r, err := NewRegistry(BuiltinTables()...)
	if err != nil {
		panic(err)
	}
	latest, err := r.Latest()
	if err != nil {
		panic(err)
	}
	r.active = latest.ID
	return r
}

// Register adds t, replacing any table with the same ID.
func (r *Registry) Register(t *Table) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: table must have an ID", ErrInvalidTable)
	}
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.ID] = t
	return nil
}

// RegisterAndActivate registers t and makes it active in one step, so
// readers never observe a registered-but-inactive reload.
func (r *Registry) RegisterAndActivate(t *Table) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("%w: table must have an ID", ErrInvalidTable)
	}
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables[t.ID] = t
	r.active = t.ID
	return nil
}

// Get returns the table registered under id.
func (r *Registry) Get(id string) (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, id)
	}
	return t, nil
}

// Resolve maps "" to the active table, LatestID to Latest and anything
// else to Get.
func (r *Registry) Resolve(id string) (*Table, error) {
	switch id {
	case "":
		return r.Active()
	case LatestID:
		return r.Latest()
	default:
		return r.Get(id)
	}
}

// Active returns the currently active table.
func (r *Registry) Active() (*Table, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == "" {
		return nil, ErrNoActiveTable
	}
	return r.tables[r.active], nil
}

// Activate makes the table with the given ID (or LatestID) active.
func (r *Registry) Activate(id string) error {
	t, err := r.Resolve(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = t.ID
	return nil
}

// List returns all tables ordered by generation time, undated tables first.
func (r *Registry) List() []*Table {
	r.mu.RLock()
	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Meta.GeneratedAt, out[j].Meta.GeneratedAt
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Latest returns the newest table that is neither unstable nor a fallback.
// When every table is unstable the newest fallback wins, and failing that
// the newest table of any kind.
func (r *Registry) Latest() (*Table, error) {
	tables := r.List()
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: registry is empty", ErrUnknownTable)
	}

	var fallback *Table
	for i := len(tables) - 1; i >= 0; i-- {
		t := tables[i]
		if t.Meta.Fallback {
			if fallback == nil {
				fallback = t
			}
			continue
		}
		if !t.Unstable() {
			return t, nil
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return tables[len(tables)-1], nil
}
