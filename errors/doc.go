// Package errors provides structured error types for the hive runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: the module involved, the
// component name, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseStore, errors.KindUnknownComponent).
//		Component("position").
//		Detail("no column for identifier %d", id).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfMemory(errors.PhaseArena, size)
//	err := errors.SchemaConflict("position", 8, 4)
//
// All errors implement the standard error interface and support errors.Is/As.
// GuestCode projects an error onto the negative i32 code surface visible to
// plugin modules.
package errors
