package cli

import "errors"

var ErrUsage = errors.New("cli usage error")

// ErrActionFailed marks a run whose NetBox request did not succeed. The
// result has already been printed.
var ErrActionFailed = errors.New("action failed")

type usageError struct {
	msg string
}

func newUsageError(msg string) error {
	return usageError{msg: msg}
}

func (e usageError) Error() string {
	return e.msg
}

func (e usageError) Is(target error) bool {
	return target == ErrUsage
}
