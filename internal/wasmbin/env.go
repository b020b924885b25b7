package wasmbin

import (
	"github.com/tetratelabs/wazero/api"
)

// Func describes one function signature by name.
type Func struct {
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// EnvModule builds the binary for the shared "env" module: it defines a
// linear memory of [minPages, maxPages] exported as "memory", imports every
// listed function from hostModule, and re-exports each one under its own
// name. Plugins then satisfy all their imports from "env" alone.
func EnvModule(hostModule string, minPages, maxPages uint32, funcs []Func) []byte {
	wasm := append([]byte{}, header...)

	// Type section: one entry per function.
	if len(funcs) > 0 {
		var body []byte
		body = append(body, EncodeULEB128(uint32(len(funcs)))...)
		for _, f := range funcs {
			body = append(body, funcType(f.Params, f.Results)...)
		}
		wasm = append(wasm, section(0x01, body)...)
	}

	// Import section: functions from the host module.
	if len(funcs) > 0 {
		var body []byte
		body = append(body, EncodeULEB128(uint32(len(funcs)))...)
		for i, f := range funcs {
			body = append(body, name(hostModule)...)
			body = append(body, name(f.Name)...)
			body = append(body, 0x00) // func import
			body = append(body, EncodeULEB128(uint32(i))...)
		}
		wasm = append(wasm, section(0x02, body)...)
	}

	// Memory section: one memory with min and max limits.
	{
		var body []byte
		body = append(body, 0x01)
		body = append(body, 0x01) // limits with max
		body = append(body, EncodeULEB128(minPages)...)
		body = append(body, EncodeULEB128(maxPages)...)
		wasm = append(wasm, section(0x05, body)...)
	}

	// Export section: the memory plus every imported function.
	{
		var body []byte
		body = append(body, EncodeULEB128(uint32(len(funcs)+1))...)
		body = append(body, name("memory")...)
		body = append(body, 0x02) // memory export
		body = append(body, EncodeULEB128(0)...)
		for i, f := range funcs {
			body = append(body, name(f.Name)...)
			body = append(body, 0x00) // func export
			body = append(body, EncodeULEB128(uint32(i))...)
		}
		wasm = append(wasm, section(0x07, body)...)
	}

	return wasm
}
