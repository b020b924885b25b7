package host

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wasmhive/hive/arena"
)

// State is a module instance's lifecycle state.
type State uint8

const (
	StateLoading State = iota
	StateLinked
	StateRunning
	StateTrapped
	StateUnloaded
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLinked:
		return "linked"
	case StateRunning:
		return "running"
	case StateTrapped:
		return "trapped"
	case StateUnloaded:
		return "unloaded"
	default:
		return "unknown"
	}
}

// Instance is one loaded plugin: its assigned memory regions, resolved call
// keys, and exported entry points. Instances are owned by the scheduler's
// goroutine; state transitions never happen mid-tick.
type Instance struct {
	name     string
	mod      api.Module
	update   api.Function
	teardown api.Function
	heap     arena.Region
	stack    arena.Region
	alloc    *arena.FreeList
	trapErr  error
	loadSeq  int
	priority int
	state    State
}

func (i *Instance) Name() string {
	return i.name
}

func (i *Instance) State() State {
	return i.state
}

// Err returns the trap that moved the instance to StateTrapped, if any.
func (i *Instance) Err() error {
	return i.trapErr
}

// Heap returns the module's heap region.
func (i *Instance) Heap() arena.Region {
	return i.heap
}

// Stack returns the module's stack region.
func (i *Instance) Stack() arena.Region {
	return i.stack
}

// Priority returns the scheduling priority; lower runs first. Instances
// default to priority 0 and fall back to load order among equals.
func (i *Instance) Priority() int {
	return i.priority
}
