// Package wasmbin synthesizes small WASM binaries at runtime.
//
// The host cannot export a linear memory from a wazero host module, so the
// shared "env" module that plugins import is generated here: it defines and
// exports the shared memory and re-exports every registered host call. The
// guest builder constructs minimal plugin binaries for tests.
package wasmbin
