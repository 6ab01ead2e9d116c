package master

import "fmt"

// InvalidArgumentError is spec.md §7's "slave index out of range" and
// "unknown variable" row: fatal for the call, no state change.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("master: invalid argument: %s", e.Reason)
}

// ErrClosed is returned by every operation once Close has run.
type ErrClosed struct{}

func (ErrClosed) Error() string { return "master: facade is closed" }
