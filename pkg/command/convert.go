package command

// ArgAs converts an untyped command argument to T.
//
// A nil argument converts to the zero value of T: value types get their
// default, and nillable types (pointers, interfaces, maps, ...) get nil.
// A non-nil argument converts only if its dynamic type is assignable to T.
func ArgAs[T any](arg any) (T, bool) {
	if arg == nil {
		var zero T
		return zero, true
	}

	v, ok := arg.(T)

	return v, ok
}
