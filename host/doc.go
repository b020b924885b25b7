// Package host runs WASM plugins against one shared linear memory.
//
// A Host owns a wazero runtime and a synthetic "env" module that defines
// the shared memory and re-exports every host call. Plugins import both
// from "env", so all loaded modules address the same memory and the host
// hands each one a private heap and stack region inside it.
//
// Host calls are fixed at the first Load: loading seals the link table
// because the env module's export list cannot change after instantiation.
// Register custom calls before loading anything.
//
// Lifecycle of a plugin:
//
//	Load     compile, resolve imports, reserve regions, call init
//	Run      the scheduler invokes update(tick) each pass
//	Unload   call teardown, close the module, release the regions
//
// A trap in update marks only the offending instance; the scheduler keeps
// ticking the rest.
package host
