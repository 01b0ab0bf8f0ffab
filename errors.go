package galley

import (
	"errors"
	"fmt"
)

// NotImplementedError signals that a concrete driver did not supply a
// required lifecycle hook (create or destroy). It indicates a
// driver-authoring defect, not a runtime condition, and is never produced by
// remote execution.
type NotImplementedError struct {
	Op string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("driver does not implement %q", e.Op)
}

// ActionError is the uniform failure produced when a remote operation does
// not complete. Transport, authentication, upload, and remote-command
// failures all surface as this one type; the underlying cause is preserved
// for diagnostics and via Unwrap.
type ActionError struct {
	Err error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("action failed: %v", e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// wrapAction converts a collaborator error into an ActionError. Errors that
// already crossed the boundary pass through untouched so double wrapping
// cannot occur.
func wrapAction(err error) error {
	if err == nil {
		return nil
	}

	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}

	return &ActionError{Err: err}
}
