package cli

import "fmt"

// UserError marks an error as user-visible (bad flag, queue not found,
// invalid filter) so cmd/desipipe can map it to exit code 1 instead of
// 2, per spec §6's exit code contract.
type UserError struct {
	err error
}

func NewUserError(format string, args ...any) *UserError {
	return &UserError{err: fmt.Errorf(format, args...)}
}

func WrapUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{err: err}
}

func (e *UserError) Error() string { return e.err.Error() }
func (e *UserError) Unwrap() error { return e.err }
