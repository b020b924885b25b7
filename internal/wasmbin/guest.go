package wasmbin

import (
	"github.com/tetratelabs/wazero/api"
)

// GuestBuilder assembles a minimal plugin binary: imports from "env"
// (memory plus host calls) and locally defined exported functions with raw
// instruction bodies. It exists for tests and tooling; real plugins come
// from an ordinary WASM toolchain.
type GuestBuilder struct {
	imports []Func
	funcs   []guestFunc
}

type guestFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
	body    []byte // instructions without the trailing end opcode
}

func NewGuestBuilder() *GuestBuilder {
	return &GuestBuilder{}
}

// Import declares a function import from "env" and returns its function
// index for use in call instructions.
func (g *GuestBuilder) Import(name string, params, results []api.ValueType) uint32 {
	g.imports = append(g.imports, Func{Name: name, Params: params, Results: results})
	return uint32(len(g.imports) - 1)
}

// Export defines a locally implemented, exported function. body holds raw
// instructions; the end opcode is appended automatically. The returned
// index accounts for imports preceding local functions.
func (g *GuestBuilder) Export(name string, params, results []api.ValueType, body []byte) uint32 {
	g.funcs = append(g.funcs, guestFunc{
		name:    name,
		params:  params,
		results: results,
		body:    body,
	})
	return uint32(len(g.imports) + len(g.funcs) - 1)
}

// Opcode helpers for hand-assembled bodies.

// Call encodes a call instruction to funcIdx.
func Call(funcIdx uint32) []byte {
	return append([]byte{0x10}, EncodeULEB128(funcIdx)...)
}

// I32Const encodes an i32.const instruction.
func I32Const(v int32) []byte {
	return append([]byte{0x41}, EncodeSLEB128(v)...)
}

// I64Const encodes an i64.const instruction.
func I64Const(v int64) []byte {
	return append([]byte{0x42}, EncodeSLEB128(v)...)
}

// LocalGet encodes a local.get instruction.
func LocalGet(idx uint32) []byte {
	return append([]byte{0x20}, EncodeULEB128(idx)...)
}

// Drop is the drop instruction.
var Drop = []byte{0x1a}

// Unreachable is the unreachable instruction, the canonical trap.
var Unreachable = []byte{0x00}

// I32Store encodes an i32.store with alignment 2 and the given offset.
func I32Store(offset uint32) []byte {
	out := []byte{0x36, 0x02}
	return append(out, EncodeULEB128(offset)...)
}

// I32Load encodes an i32.load with alignment 2 and the given offset.
func I32Load(offset uint32) []byte {
	out := []byte{0x28, 0x02}
	return append(out, EncodeULEB128(offset)...)
}

// I32Store8 encodes an i32.store8 with the given offset.
func I32Store8(offset uint32) []byte {
	out := []byte{0x3a, 0x00}
	return append(out, EncodeULEB128(offset)...)
}

// I32Add is the i32.add instruction.
var I32Add = []byte{0x6a}

// I64Add is the i64.add instruction.
var I64Add = []byte{0x7c}

// Build produces the module binary. The memory is always imported as
// env.memory; every listed import resolves from "env".
func (g *GuestBuilder) Build() []byte {
	wasm := append([]byte{}, header...)

	total := len(g.imports) + len(g.funcs)

	// Type section: one entry per function, imports first.
	if total > 0 {
		var body []byte
		body = append(body, EncodeULEB128(uint32(total))...)
		for _, f := range g.imports {
			body = append(body, funcType(f.Params, f.Results)...)
		}
		for _, f := range g.funcs {
			body = append(body, funcType(f.params, f.results)...)
		}
		wasm = append(wasm, section(0x01, body)...)
	}

	// Import section: env.memory plus the declared host calls.
	{
		var body []byte
		body = append(body, EncodeULEB128(uint32(len(g.imports)+1))...)
		body = append(body, name("env")...)
		body = append(body, name("memory")...)
		body = append(body, 0x02) // memory import
		body = append(body, 0x00) // limits: min only
		body = append(body, EncodeULEB128(0)...)
		for i, f := range g.imports {
			body = append(body, name("env")...)
			body = append(body, name(f.Name)...)
			body = append(body, 0x00) // func import
			body = append(body, EncodeULEB128(uint32(i))...)
		}
		wasm = append(wasm, section(0x02, body)...)
	}

	// Function section: local functions reference their own types.
	if len(g.funcs) > 0 {
		var body []byte
		body = append(body, EncodeULEB128(uint32(len(g.funcs)))...)
		for i := range g.funcs {
			body = append(body, EncodeULEB128(uint32(len(g.imports)+i))...)
		}
		wasm = append(wasm, section(0x03, body)...)
	}

	// Export section.
	if len(g.funcs) > 0 {
		var body []byte
		body = append(body, EncodeULEB128(uint32(len(g.funcs)))...)
		for i, f := range g.funcs {
			body = append(body, name(f.name)...)
			body = append(body, 0x00)
			body = append(body, EncodeULEB128(uint32(len(g.imports)+i))...)
		}
		wasm = append(wasm, section(0x07, body)...)
	}

	// Code section.
	if len(g.funcs) > 0 {
		var body []byte
		body = append(body, EncodeULEB128(uint32(len(g.funcs)))...)
		for _, f := range g.funcs {
			code := []byte{0x00} // no local declarations
			code = append(code, f.body...)
			code = append(code, 0x0b)
			body = append(body, EncodeULEB128(uint32(len(code)))...)
			body = append(body, code...)
		}
		wasm = append(wasm, section(0x0a, body)...)
	}

	return wasm
}
