package amount

import "fmt"

// InputError is returned when the input is not well-formed text or image data.
// Nothing is processed when it occurs.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string {
	return "invalid input: " + e.Reason
}

// BackendError is an external collaborator failure that could not be recovered
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
