package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wasmhive/hive/component"
	"github.com/wasmhive/hive/errors"
	"github.com/wasmhive/hive/link"
)

// Built-in host calls, the Module → Host surface every plugin links
// against. All of them use the flat i32/i64 ABI over the shared memory;
// failures surface as negative error codes, never as host faults.
const (
	callAlloc             = "hive_alloc"
	callFree              = "hive_free"
	callRegisterComponent = "hive_register_component"
	callGetColumn         = "hive_get_column"
	callInsertRow         = "hive_insert_row"
	callRemoveRow         = "hive_remove_row"
	callLog               = "hive_log"
	callLink              = "hive_link"
	callCall              = "hive_call"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

func (h *Host) registerBuiltins() error {
	builtins := map[string]link.HostCall{
		callAlloc: {
			Params:  []api.ValueType{i32},
			Results: []api.ValueType{i32},
			Func:    h.sysAlloc,
		},
		callFree: {
			Params: []api.ValueType{i32, i32},
			Func:   h.sysFree,
		},
		callRegisterComponent: {
			Params:  []api.ValueType{i32, i32, i32, i32},
			Results: []api.ValueType{i32},
			Func:    h.sysRegisterComponent,
		},
		callGetColumn: {
			Params:  []api.ValueType{i32, i32},
			Results: []api.ValueType{i32},
			Func:    h.sysGetColumn,
		},
		callInsertRow: {
			Params:  []api.ValueType{i32, i64},
			Results: []api.ValueType{i32},
			Func:    h.sysInsertRow,
		},
		callRemoveRow: {
			Params:  []api.ValueType{i32, i32},
			Results: []api.ValueType{i32},
			Func:    h.sysRemoveRow,
		},
		callLog: {
			Params: []api.ValueType{i32, i32, i32},
			Func:   h.sysLog,
		},
		callLink: {
			Params:  []api.ValueType{i32, i32, i32, i32},
			Results: []api.ValueType{i32},
			Func:    h.sysLink,
		},
		callCall: {
			Params:  []api.ValueType{i32, i64, i32},
			Results: []api.ValueType{i32},
			Func:    h.sysCall,
		},
	}

	for name, call := range builtins {
		if err := h.links.Register(name, call); err != nil {
			return err
		}
	}
	return nil
}

// sysAlloc carves size bytes from the calling module's own heap region.
// Returns the absolute offset, or 0 when the module heap is exhausted;
// offset 0 is never a valid allocation.
func (h *Host) sysAlloc(ctx context.Context, mod api.Module, stack []uint64) {
	size := uint32(stack[0])

	inst := h.instanceOf(mod)
	if inst == nil {
		stack[0] = 0
		return
	}

	ptr, err := inst.alloc.Alloc(size, 8)
	if err != nil {
		h.log.Debug("module heap exhausted",
			zap.String("module", mod.Name()),
			zap.Uint32("size", size))
		stack[0] = 0
		return
	}
	stack[0] = uint64(ptr)
}

func (h *Host) sysFree(ctx context.Context, mod api.Module, stack []uint64) {
	ptr, size := uint32(stack[0]), uint32(stack[1])

	inst := h.instanceOf(mod)
	if inst == nil {
		return
	}
	inst.alloc.Free(ptr, size)
}

// sysRegisterComponent reads the component name from the caller's memory
// and returns its identifier, or a negative error code.
func (h *Host) sysRegisterComponent(ctx context.Context, mod api.Module, stack []uint64) {
	namePtr, nameLen := uint32(stack[0]), uint32(stack[1])
	size, align := uint32(stack[2]), uint32(stack[3])

	raw, ok := mod.Memory().Read(namePtr, nameLen)
	if !ok {
		stack[0] = code(errors.CodeInvalidInput)
		return
	}
	name := string(raw) // copy out of the linear memory view

	id, err := h.registry.RegisterOrGet(name, size, align)
	if err != nil {
		h.log.Debug("component registration rejected",
			zap.String("module", mod.Name()),
			zap.String("component", name),
			zap.Error(err))
		stack[0] = code(errors.GuestCode(err))
		return
	}
	stack[0] = uint64(id)
}

// sysGetColumn writes {base, stride, rows, capacity} as four u32 values at
// outPtr in the caller's memory. The base offset is only valid until the
// next growth-triggering insert.
func (h *Host) sysGetColumn(ctx context.Context, mod api.Module, stack []uint64) {
	id := component.ID(uint32(stack[0]))
	outPtr := uint32(stack[1])

	info, err := h.store.EnsureColumn(id)
	if err != nil {
		stack[0] = code(errors.GuestCode(err))
		return
	}

	mem := mod.Memory()
	if !mem.WriteUint32Le(outPtr, info.BaseOffset) ||
		!mem.WriteUint32Le(outPtr+4, info.Stride) ||
		!mem.WriteUint32Le(outPtr+8, info.Rows) ||
		!mem.WriteUint32Le(outPtr+12, info.Capacity) {
		stack[0] = code(errors.CodeInvalidInput)
		return
	}
	stack[0] = code(errors.CodeOK)
}

func (h *Host) sysInsertRow(ctx context.Context, mod api.Module, stack []uint64) {
	id := component.ID(uint32(stack[0]))
	entity := stack[1]

	row, err := h.store.InsertRow(id, entity)
	if err != nil {
		stack[0] = code(errors.GuestCode(err))
		return
	}
	stack[0] = uint64(row)
}

func (h *Host) sysRemoveRow(ctx context.Context, mod api.Module, stack []uint64) {
	id := component.ID(uint32(stack[0]))
	row := uint32(stack[1])

	if err := h.store.RemoveRow(id, row); err != nil {
		stack[0] = code(errors.GuestCode(err))
		return
	}
	stack[0] = code(errors.CodeOK)
}

// sysLink resolves another loaded module's exported function by name and
// returns a call key for hive_call. Linked functions must take one i64 and
// return one i64; larger payloads travel through the shared memory with the
// i64 carrying an offset. Keys survive until the target module is unloaded.
func (h *Host) sysLink(ctx context.Context, mod api.Module, stack []uint64) {
	modPtr, modLen := uint32(stack[0]), uint32(stack[1])
	fnPtr, fnLen := uint32(stack[2]), uint32(stack[3])

	mem := mod.Memory()
	rawMod, ok := mem.Read(modPtr, modLen)
	if !ok {
		stack[0] = code(errors.CodeInvalidInput)
		return
	}
	rawFn, ok := mem.Read(fnPtr, fnLen)
	if !ok {
		stack[0] = code(errors.CodeInvalidInput)
		return
	}
	targetName, fnName := string(rawMod), string(rawFn)

	target := h.instanceByName(targetName)
	if target == nil {
		h.log.Debug("cross-module link failed",
			zap.String("caller", mod.Name()),
			zap.String("target", targetName))
		stack[0] = code(errors.CodeUnresolvedHostCall)
		return
	}
	fn := target.mod.ExportedFunction(fnName)
	if fn == nil {
		stack[0] = code(errors.CodeUnresolvedHostCall)
		return
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != 1 || def.ParamTypes()[0] != i64 ||
		len(def.ResultTypes()) != 1 || def.ResultTypes()[0] != i64 {
		stack[0] = code(errors.CodeInvalidInput)
		return
	}

	h.crossMu.Lock()
	h.cross = append(h.cross, crossCall{fn: fn, target: target})
	key := uint32(len(h.cross))
	h.crossMu.Unlock()

	h.log.Debug("cross-module call linked",
		zap.String("caller", mod.Name()),
		zap.String("target", targetName),
		zap.String("function", fnName),
		zap.Uint32("key", key))
	stack[0] = uint64(key)
}

// sysCall invokes a function linked through hive_link. The i64 result is
// written at outPtr on success. A trap inside the target marks the target
// instance trapped; the caller gets an error code, not a fault of its own.
func (h *Host) sysCall(ctx context.Context, mod api.Module, stack []uint64) {
	key := uint32(stack[0])
	arg := stack[1]
	outPtr := uint32(stack[2])

	h.crossMu.Lock()
	var cc crossCall
	if key >= 1 && int(key) <= len(h.cross) {
		cc = h.cross[key-1]
	}
	h.crossMu.Unlock()

	if cc.fn == nil {
		stack[0] = code(errors.CodeInvalidInput)
		return
	}
	if cc.target.state != StateRunning {
		stack[0] = code(errors.CodeUnresolvedHostCall)
		return
	}

	results, err := cc.fn.Call(ctx, arg)
	if err != nil {
		cc.target.trapErr = errors.Trap(cc.target.name, err)
		cc.target.state = StateTrapped
		h.log.Warn("cross-module call trapped",
			zap.String("caller", mod.Name()),
			zap.String("target", cc.target.name),
			zap.Error(err))
		stack[0] = code(errors.CodeInternal)
		return
	}
	if !mod.Memory().WriteUint64Le(outPtr, results[0]) {
		stack[0] = code(errors.CodeInvalidInput)
		return
	}
	stack[0] = code(errors.CodeOK)
}

// sysLog routes a module's message through the host logger.
func (h *Host) sysLog(ctx context.Context, mod api.Module, stack []uint64) {
	level, ptr, length := uint32(stack[0]), uint32(stack[1]), uint32(stack[2])

	raw, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return
	}
	msg := string(raw)
	field := zap.String("module", mod.Name())

	switch level {
	case 0:
		h.log.Debug(msg, field)
	case 1:
		h.log.Info(msg, field)
	case 2:
		h.log.Warn(msg, field)
	default:
		h.log.Error(msg, field)
	}
}

// code sign-extends a guest error code onto the wazero stack.
func code(c int32) uint64 {
	return uint64(uint32(c))
}
