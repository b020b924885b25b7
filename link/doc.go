// Package link maps host-call names to callable implementations.
//
// The embedder registers calls by name before any module loads. At link
// time each module's requested names are resolved once into small integer
// keys; per-tick invocation is an indexed dispatch with no name lookup.
// A module requesting an unregistered name fails at link time, never at
// call time.
package link
