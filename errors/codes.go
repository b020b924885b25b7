package errors

// Guest error codes are the module-visible projection of error kinds.
// Built-in host calls return them as negative i32 values; zero and positive
// values are successful results.
const (
	CodeOK                 int32 = 0
	CodeOutOfMemory        int32 = -1
	CodeSchemaConflict     int32 = -2
	CodeUnknownComponent   int32 = -3
	CodeInvalidInput       int32 = -4
	CodeUnresolvedHostCall int32 = -5
	CodeInternal           int32 = -6
)

// GuestCode maps an error to the code a plugin sees. nil maps to CodeOK.
func GuestCode(err error) int32 {
	if err == nil {
		return CodeOK
	}
	e, ok := err.(*Error)
	if !ok {
		return CodeInternal
	}
	switch e.Kind {
	case KindOutOfMemory:
		return CodeOutOfMemory
	case KindSchemaConflict:
		return CodeSchemaConflict
	case KindUnknownComponent:
		return CodeUnknownComponent
	case KindInvalidInput:
		return CodeInvalidInput
	case KindUnresolvedHostCall:
		return CodeUnresolvedHostCall
	default:
		return CodeInternal
	}
}
