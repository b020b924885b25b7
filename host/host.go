package host

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmhive/hive/arena"
	"github.com/wasmhive/hive/component"
	"github.com/wasmhive/hive/errors"
	"github.com/wasmhive/hive/internal/wasmbin"
	"github.com/wasmhive/hive/link"
	"github.com/wasmhive/hive/store"
)

// hostModule is the wazero module name the env module imports host
// functions from. Plugins themselves only ever see "env".
const hostModule = "hive"

// Host owns the shared memory, the arena partitioning it, the component
// registry and column store, the host-call link table, and every loaded
// plugin instance.
type Host struct {
	cfg       Config
	log       *zap.Logger
	rt        wazero.Runtime
	env       api.Module
	shmem     *wasmMemory
	arena     *arena.Arena
	registry  *component.Registry
	store     *store.Store
	links     *link.Table
	sched     *Scheduler
	instances map[string]*Instance
	cross     []crossCall
	nextSeq   int
	sealed    bool

	// mu serializes lifecycle operations (Register, Load, Unload, Close).
	// instMu guards only the instances map so host calls made during a
	// module's init, while Load still holds mu, can look up their caller.
	// crossMu guards the cross-module call table.
	mu      sync.Mutex
	instMu  sync.RWMutex
	crossMu sync.Mutex
}

// crossCall is one resolved module-to-module linkage: a target instance's
// exported function, invokable by key through hive_call. Entries pin the
// instance they were resolved against; unloading it invalidates the key.
type crossCall struct {
	fn     api.Function
	target *Instance
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host's logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(h *Host) {
		h.log = log
	}
}

// New creates a host runtime. Custom host calls must be registered before
// the first Load; loading seals the call table because the shared env
// module's export list is fixed at instantiation.
func New(ctx context.Context, cfg Config, opts ...Option) (*Host, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	h := &Host{
		cfg:       cfg,
		log:       zap.NewNop(),
		rt:        wazero.NewRuntime(ctx),
		registry:  component.NewRegistry(),
		links:     link.NewTable(),
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.sched = newScheduler(h.log)

	if err := h.registerBuiltins(); err != nil {
		h.rt.Close(ctx)
		return nil, err
	}
	return h, nil
}

// Register adds an embedder-supplied host call. Fails with a sealed error
// once any module has been loaded.
func (h *Host) Register(name string, call link.HostCall) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sealed {
		return errors.Sealed("host calls must be registered before the first module load")
	}
	return h.links.Register(name, call)
}

// seal instantiates the host function module and the shared env module.
// Called under h.mu on the first Load.
func (h *Host) sealLocked(ctx context.Context) error {
	if h.sealed {
		return nil
	}

	entries := h.links.Entries()
	builder := h.rt.NewHostModuleBuilder(hostModule)
	funcs := make([]wasmbin.Func, len(entries))
	for i, e := range entries {
		key := e.Key
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				h.links.Invoke(ctx, key, mod, stack)
			}), e.Params, e.Results).
			Export(e.Name)
		funcs[i] = wasmbin.Func{Name: e.Name, Params: e.Params, Results: e.Results}
	}
	hostMod, err := builder.Instantiate(ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate host call module")
	}

	envBytes := wasmbin.EnvModule(hostModule, h.cfg.MemoryPages, h.cfg.MemoryMaxPages, funcs)
	env, err := h.rt.InstantiateWithConfig(ctx, envBytes, wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		// Unwind the host module so a retried Load does not collide with
		// the half-finished seal on the module name.
		hostMod.Close(ctx)
		return errors.Wrap(errors.PhaseHost, errors.KindInstantiation, err, "instantiate env module")
	}

	h.env = env
	h.shmem = &wasmMemory{mem: env.ExportedMemory("memory")}
	h.arena = arena.New(h.cfg.MemoryMaxPages * pageSize)
	h.store = store.New(h.shmem, h.arena, h.registry,
		store.WithInitialCapacity(h.cfg.ColumnCapacity))
	h.sealed = true

	h.log.Info("host sealed",
		zap.Uint32("memory_pages", h.cfg.MemoryPages),
		zap.Uint32("memory_max_pages", h.cfg.MemoryMaxPages),
		zap.Int("host_calls", len(entries)))
	return nil
}

// Load compiles and instantiates a plugin. Every declared env import is
// resolved against the link table before instantiation; unresolved names
// abort the load with a linkage error and the module never runs.
func (h *Host) Load(ctx context.Context, name string, wasm []byte) (*Instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.sealLocked(ctx); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "module name cannot be empty")
	}
	h.instMu.RLock()
	_, exists := h.instances[name]
	h.instMu.RUnlock()
	if exists {
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Module(name).
			Detail("module name already loaded").
			Build()
	}

	compiled, err := h.rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "compile module")
	}

	var unresolved []string
	for _, def := range compiled.ImportedFunctions() {
		modName, fnName, _ := def.Import()
		if modName != "env" {
			unresolved = append(unresolved, modName+"."+fnName)
			continue
		}
		if _, rerr := h.links.Resolve(name, fnName); rerr != nil {
			unresolved = append(unresolved, fnName)
		}
	}
	if len(unresolved) > 0 {
		compiled.Close(ctx)
		return nil, errors.Linkage(name, unresolved)
	}
	if _, ok := compiled.ExportedFunctions()["update"]; !ok {
		compiled.Close(ctx)
		return nil, errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Module(name).
			Detail("plugin must export update").
			Build()
	}

	heap, err := h.arena.Reserve(name, arena.KindHeap, h.cfg.ModuleHeapSize)
	if err != nil {
		compiled.Close(ctx)
		return nil, err
	}
	stack, err := h.arena.Reserve(name, arena.KindStack, h.cfg.ModuleStackSize)
	if err != nil {
		h.arena.Release(heap)
		compiled.Close(ctx)
		return nil, err
	}

	// Commit and zero the regions so reused spans never leak a previous
	// module's bytes and guest-side stores stay within committed pages.
	if err := h.zeroRegion(heap); err == nil {
		err = h.zeroRegion(stack)
	}
	if err != nil {
		h.arena.ReleaseOwner(name)
		compiled.Close(ctx)
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfMemory, err, "commit module regions")
	}

	inst := &Instance{
		name:    name,
		heap:    heap,
		stack:   stack,
		alloc:   arena.NewFreeList(heap.Offset, heap.Length),
		state:   StateLoading,
		loadSeq: h.nextSeq,
	}
	h.nextSeq++

	// Registered before instantiation so host calls made during init can
	// identify the caller.
	h.instMu.Lock()
	h.instances[name] = inst
	h.instMu.Unlock()

	mod, err := h.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions())
	if err != nil {
		h.dropInstance(name)
		h.arena.ReleaseOwner(name)
		return nil, errors.Instantiation(name, err)
	}

	inst.mod = mod
	inst.update = mod.ExportedFunction("update")
	inst.teardown = mod.ExportedFunction("teardown")
	inst.state = StateLinked

	if init := mod.ExportedFunction("init"); init != nil {
		_, err := init.Call(ctx,
			uint64(heap.Offset), uint64(heap.Length),
			uint64(stack.Offset), uint64(stack.Length))
		if err != nil {
			mod.Close(ctx)
			h.dropInstance(name)
			h.arena.ReleaseOwner(name)
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindTrap, err, "init trapped")
		}
	}

	inst.state = StateRunning
	h.sched.add(inst)

	h.log.Info("module loaded",
		zap.String("module", name),
		zap.Uint32("heap_offset", heap.Offset),
		zap.Uint32("stack_offset", stack.Offset))
	return inst, nil
}

func (h *Host) zeroRegion(r arena.Region) error {
	return h.shmem.Write(r.Offset, make([]byte, r.Length))
}

func (h *Host) dropInstance(name string) {
	h.instMu.Lock()
	delete(h.instances, name)
	h.instMu.Unlock()
}

// Unload tears a module down from any lifecycle state and always releases
// its memory regions back to the arena.
func (h *Host) Unload(ctx context.Context, inst *Instance) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if inst.state == StateUnloaded {
		return nil
	}

	if inst.teardown != nil && inst.state == StateRunning {
		if _, err := inst.teardown.Call(ctx); err != nil {
			h.log.Warn("teardown trapped", zap.String("module", inst.name), zap.Error(err))
		}
	}
	if inst.mod != nil {
		inst.mod.Close(ctx)
	}

	h.arena.ReleaseOwner(inst.name)
	h.sched.remove(inst)
	h.dropInstance(inst.name)
	inst.state = StateUnloaded

	h.log.Info("module unloaded", zap.String("module", inst.name))
	return nil
}

// Close unloads every module and releases the runtime.
func (h *Host) Close(ctx context.Context) error {
	h.instMu.RLock()
	var all []*Instance
	for _, inst := range h.instances {
		all = append(all, inst)
	}
	h.instMu.RUnlock()

	for _, inst := range all {
		h.Unload(ctx, inst)
	}
	return h.rt.Close(ctx)
}

// Scheduler returns the tick scheduler.
func (h *Host) Scheduler() *Scheduler {
	return h.sched
}

// Store returns the column store. Nil until the first module load seals
// the host.
func (h *Host) Store() *store.Store {
	return h.store
}

// Registry returns the component registry.
func (h *Host) Registry() *component.Registry {
	return h.registry
}

// Arena returns the shared-region allocator. Nil until sealed.
func (h *Host) Arena() *arena.Arena {
	return h.arena
}

// Instance returns the loaded instance named name.
func (h *Host) Instance(name string) (*Instance, bool) {
	h.instMu.RLock()
	defer h.instMu.RUnlock()
	inst, ok := h.instances[name]
	return inst, ok
}

func (h *Host) instanceOf(mod api.Module) *Instance {
	return h.instanceByName(mod.Name())
}

func (h *Host) instanceByName(name string) *Instance {
	h.instMu.RLock()
	defer h.instMu.RUnlock()
	return h.instances[name]
}

// ColumnByName gives the embedder read access to a column's shape without
// going through a module.
func (h *Host) ColumnByName(name string) (store.ColumnInfo, error) {
	if h.store == nil {
		return store.ColumnInfo{}, errors.InvalidInput(errors.PhaseHost, "host not sealed yet")
	}
	return h.store.ColumnByName(name)
}

// MemoryView reads raw bytes of the shared memory for rendering or
// inspection. The returned slice aliases the linear memory and is only
// valid until the memory next grows.
func (h *Host) MemoryView(offset, length uint32) ([]byte, error) {
	if h.shmem == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "host not sealed yet")
	}
	return h.shmem.Read(offset, length)
}

// SpawnEntity populates one row for entity in each listed component's
// column and returns the row indices in argument order.
func (h *Host) SpawnEntity(entity uint64, ids ...component.ID) ([]uint32, error) {
	if h.store == nil {
		return nil, errors.InvalidInput(errors.PhaseHost, "host not sealed yet")
	}

	rows := make([]uint32, len(ids))
	for i, id := range ids {
		if _, err := h.store.EnsureColumn(id); err != nil {
			return nil, err
		}
		row, err := h.store.InsertRow(id, entity)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}
