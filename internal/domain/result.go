package domain

// Result carries either a value or the error that prevented computing it.
// Batch operations (per-candidate pricing, scoring) collect one Result per
// item so the orchestrator can apply a single failure policy instead of each
// component defaulting failures independently.
type Result[T any] struct {
	value T
	err   error
}

// Ok creates a successful result.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Fail creates a failed result.
func Fail[T any](err error) Result[T] {
	return Result[T]{err: err}
}

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool {
	return r.err == nil
}

// Value returns the held value. Only meaningful when IsOk() is true.
func (r Result[T]) Value() T {
	return r.value
}

// Err returns the held error, nil on success.
func (r Result[T]) Err() error {
	return r.err
}
