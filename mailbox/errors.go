package mailbox

import (
	"errors"
	"fmt"
)

// errResilientReadFailed is published when checkMailbox reports -2:
// retries exhausted (spec.md §4.6).
var errResilientReadFailed = errors.New("resilient-read-failed")

// TransientError wraps any checkMailbox return code other than 1, 0, or -2.
type TransientError struct {
	Code int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("mailbox: transient error, code %d", e.Code)
}
