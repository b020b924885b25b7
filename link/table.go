package link

import (
	"context"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wasmhive/hive/errors"
)

// Key identifies a resolved host call. Keys are stable for the lifetime of
// the table and index straight into the dispatch slice.
type Key uint32

// HostCall is one embedder-supplied callable. Params and Results describe
// the flat WASM signature the guest import must match; Func reads its
// arguments from stack and writes results back in place, wazero host
// function convention.
type HostCall struct {
	Func    func(ctx context.Context, mod api.Module, stack []uint64)
	Params  []api.ValueType
	Results []api.ValueType
}

type entry struct {
	call HostCall
	name string
}

// Table is the dynamic host-call linking table shared by every module of a
// host instance.
type Table struct {
	names   map[string]Key
	entries []entry
	mu      sync.RWMutex
}

func NewTable() *Table {
	return &Table{
		names: make(map[string]Key),
	}
}

// Register adds a host call under name. Registration is explicit and
// conflict-free: a second registration of the same name fails with a
// duplicate_host_call error rather than silently overwriting.
func (t *Table) Register(name string, call HostCall) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseLink, "host call name cannot be empty")
	}
	if call.Func == nil {
		return errors.InvalidInput(errors.PhaseLink, "host call implementation cannot be nil")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.names[name]; exists {
		return errors.DuplicateHostCall(name)
	}

	key := Key(len(t.entries))
	t.entries = append(t.entries, entry{name: name, call: call})
	t.names[name] = key
	return nil
}

// Resolve returns the key for name, performed once per module at link time.
// An unregistered name fails with unresolved_host_call and the module load
// must abort before the module ever runs.
func (t *Table) Resolve(module, name string) (Key, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key, ok := t.names[name]
	if !ok {
		return 0, errors.UnresolvedHostCall(module, name)
	}
	return key, nil
}

// Invoke dispatches the call behind key. This is the tick-time fast path:
// no name lookup, only an indexed load. The host call's own results,
// including module-visible error codes, travel back through stack.
func (t *Table) Invoke(ctx context.Context, key Key, mod api.Module, stack []uint64) error {
	t.mu.RLock()
	if int(key) >= len(t.entries) {
		t.mu.RUnlock()
		return errors.New(errors.PhaseLink, errors.KindNotFound).
			Detail("call key %d out of range", key).
			Build()
	}
	call := t.entries[key].call
	t.mu.RUnlock()

	call.Func(ctx, mod, stack)
	return nil
}

// Signature returns the flat signature recorded for key.
func (t *Table) Signature(key Key) (params, results []api.ValueType, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(key) >= len(t.entries) {
		return nil, nil, errors.New(errors.PhaseLink, errors.KindNotFound).
			Detail("call key %d out of range", key).
			Build()
	}
	e := t.entries[key]
	return e.call.Params, e.call.Results, nil
}

// Lookup reports whether name is registered without counting as a
// resolution.
func (t *Table) Lookup(name string) (Key, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	key, ok := t.names[name]
	return key, ok
}

// Entry is the public shape of one registered call, returned in key order.
type Entry struct {
	Name    string
	Key     Key
	Params  []api.ValueType
	Results []api.ValueType
}

// Entries returns every registered call ordered by key. The host uses this
// to synthesize the env module with one export per call.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = Entry{
			Key:     Key(i),
			Name:    e.name,
			Params:  e.call.Params,
			Results: e.call.Results,
		}
	}
	return out
}

// Names returns every registered call name, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e.name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered calls.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
