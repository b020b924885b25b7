// Package component assigns process-unique runtime identifiers to component
// type names. Plugins never hard-code identifiers; they look them up by name
// at initialization, so independently compiled plugins cannot collide.
package component

import (
	"sync"

	"github.com/wasmhive/hive/errors"
)

// ID is an opaque component identifier, assigned monotonically in
// declaration order. IDs start at 1; 0 is never a valid identifier.
type ID uint32

// Descriptor describes one registered component type. Descriptors are never
// mutated after creation.
type Descriptor struct {
	Name  string
	ID    ID
	Size  uint32 // element size in bytes, the column stride
	Align uint32
}

// Registry maps declared component names to descriptors. One Registry is
// shared by every module for the lifetime of the host.
type Registry struct {
	byName map[string]ID
	byID   []Descriptor // index = ID-1
	mu     sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]ID),
	}
}

// RegisterOrGet returns the identifier for name, creating a descriptor on
// first registration. The same name always maps to the same identifier; a
// re-registration with a different size or alignment fails with a
// component_schema_conflict error and never produces a new identifier.
func (r *Registry) RegisterOrGet(name string, size, align uint32) (ID, error) {
	if name == "" {
		return 0, errors.InvalidInput(errors.PhaseRegister, "component name cannot be empty")
	}
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseRegister, "component element size cannot be zero")
	}
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.InvalidInput(errors.PhaseRegister, "alignment must be a power of two")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		d := r.byID[id-1]
		if d.Size != size || d.Align != align {
			return 0, errors.SchemaConflict(name, d.Size, size)
		}
		return id, nil
	}

	id := ID(len(r.byID) + 1)
	r.byID = append(r.byID, Descriptor{
		ID:    id,
		Name:  name,
		Size:  size,
		Align: align,
	})
	r.byName[name] = id
	return id, nil
}

// Describe returns the descriptor for id.
func (r *Registry) Describe(id ID) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == 0 || int(id) > len(r.byID) {
		return Descriptor{}, errors.UnknownComponent(errors.PhaseRegister, uint32(id))
	}
	return r.byID[id-1], nil
}

// Lookup returns the identifier registered for name, if any.
func (r *Registry) Lookup(name string) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	return id, ok
}

// Len returns the number of registered component types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Descriptors returns a snapshot of all descriptors in declaration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, len(r.byID))
	copy(out, r.byID)
	return out
}
