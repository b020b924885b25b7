package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseArena    Phase = "arena"    // shared-region span allocation
	PhaseRegister Phase = "register" // component type registration
	PhaseStore    Phase = "store"    // column storage
	PhaseLink     Phase = "link"     // host-call resolution
	PhaseLoad     Phase = "load"     // module loading and instantiation
	PhaseTick     Phase = "tick"     // scheduled module execution
	PhaseHost     Phase = "host"     // host configuration and embedder calls
)

// Kind categorizes the error
type Kind string

const (
	KindOutOfMemory         Kind = "out_of_memory"
	KindRegionGrowthBlocked Kind = "region_growth_blocked"
	KindSchemaConflict      Kind = "component_schema_conflict"
	KindUnknownComponent    Kind = "unknown_component"
	KindDuplicateHostCall   Kind = "duplicate_host_call"
	KindUnresolvedHostCall  Kind = "unresolved_host_call"
	KindLinkage             Kind = "linkage"
	KindTrap                Kind = "trap"
	KindInvalidInput        Kind = "invalid_input"
	KindNotFound            Kind = "not_found"
	KindInstantiation       Kind = "instantiation"
	KindSealed              Kind = "sealed"
	KindState               Kind = "state"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	Module    string
	Component string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Module != "" {
		b.WriteString(" module ")
		b.WriteString(e.Module)
	}
	if e.Component != "" {
		b.WriteString(" component ")
		b.WriteString(e.Component)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err is an *Error of the given kind, regardless of phase.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Module sets the module name
func (b *Builder) Module(name string) *Builder {
	b.err.Module = name
	return b
}

// Component sets the component type name
func (b *Builder) Component(name string) *Builder {
	b.err.Component = name
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// OutOfMemory reports that no contiguous free span can satisfy a reservation.
func OutOfMemory(phase Phase, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfMemory,
		Detail: fmt.Sprintf("no contiguous free span of %d bytes", size),
	}
}

// GrowthBlocked reports that a region cannot extend in place because the
// adjacent bytes are occupied.
func GrowthBlocked(offset, length, additional uint32) *Error {
	return &Error{
		Phase:  PhaseArena,
		Kind:   KindRegionGrowthBlocked,
		Detail: fmt.Sprintf("region [%d,%d) cannot grow by %d: neighbor occupied", offset, offset+length, additional),
	}
}

// SchemaConflict reports a component registered twice with different layouts.
func SchemaConflict(name string, registered, requested uint32) *Error {
	return &Error{
		Phase:     PhaseRegister,
		Kind:      KindSchemaConflict,
		Component: name,
		Detail:    fmt.Sprintf("registered with element size %d, re-declared with %d", registered, requested),
	}
}

// UnknownComponent reports a query against an unregistered identifier.
func UnknownComponent(phase Phase, id uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownComponent,
		Detail: fmt.Sprintf("identifier %d is not registered", id),
	}
}

// DuplicateHostCall reports a second registration of a host-call name.
func DuplicateHostCall(name string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindDuplicateHostCall,
		Detail: fmt.Sprintf("host call %q already registered", name),
	}
}

// UnresolvedHostCall reports a link-time lookup of an unregistered name.
func UnresolvedHostCall(module, name string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindUnresolvedHostCall,
		Module: module,
		Detail: fmt.Sprintf("host call %q is not registered", name),
	}
}

// Linkage reports a module whose declared imports cannot all be resolved.
// The load aborts before the module ever runs.
func Linkage(module string, unresolved []string) *Error {
	return &Error{
		Phase:  PhaseLink,
		Kind:   KindLinkage,
		Module: module,
		Detail: "unresolved imports: " + strings.Join(unresolved, ", "),
	}
}

// Trap wraps a runtime fault raised inside a module's execution.
func Trap(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseTick,
		Kind:   KindTrap,
		Module: module,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Instantiation wraps a wazero instantiation failure.
func Instantiation(module string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Module: module,
		Cause:  cause,
	}
}

// Sealed reports registration attempted after the host began loading modules.
func Sealed(detail string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindSealed,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
