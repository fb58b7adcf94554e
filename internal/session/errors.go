package session

import "errors"

// Admission and lookup errors
var (
	ErrInvalidRole       = errors.New("invalid role: must be 'student' or 'instructor'")
	ErrInstructorPresent = errors.New("instructor already connected")
	ErrNoInstructor      = errors.New("no instructor connected yet")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrUserNotFound      = errors.New("user not found")
	ErrNotActive         = errors.New("participant is not active")
	ErrNotInSameRoom     = errors.New("target is not in the sender's room")
)

// AdmissionError is returned by Admit. Reason is the human-readable text sent back to
// the rejected client.
type AdmissionError struct {
	Reason string
	Err    error
}

func (e *AdmissionError) Error() string {
	return "admission rejected: " + e.Reason
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}

func reject(reason string, err error) *AdmissionError {
	return &AdmissionError{Reason: reason, Err: err}
}
