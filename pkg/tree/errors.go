package tree

import "fmt"

// InternalError reports a broken invariant in the analysis. It is raised
// with panic and recovered at the function boundary.
type InternalError struct {
	Func string
	Pos  Pos
	Msg  string
}

func (e *InternalError) Error() string {
	if e.Func == "" {
		return fmt.Sprintf("internal error at %s: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("internal error in %s at %s: %s", e.Func, e.Pos, e.Msg)
}

// Failf panics with an *InternalError.
func Failf(pos Pos, format string, args ...interface{}) {
	panic(&InternalError{Pos: pos, Msg: fmt.Sprintf(format, args...)})
}

// Assert panics with an *InternalError when cond is false.
func Assert(cond bool, pos Pos, format string, args ...interface{}) {
	if !cond {
		Failf(pos, format, args...)
	}
}
