package core

import "fmt"

// Error is an error with a machine-readable code. Two Errors match under
// errors.Is when their codes are equal.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// FailFast panics when err is non-nil. Used by Must-style constructors.
func FailFast(err error) {
	if err != nil {
		panic(fmt.Errorf("fail-fast: %w", err))
	}
}
