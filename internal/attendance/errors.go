package attendance

import (
	"errors"
	"fmt"

	"campus/internal/eligibility"
)

var (
	// ErrUnauthenticated is returned when no verified user id is available.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrDuplicateAttendance is returned by Repository.CreateAttendance when
	// a record already exists for the (student, meeting) pair.
	ErrDuplicateAttendance = errors.New("attendance already recorded")
	// ErrMissingStudent is returned by CheckIn without a student id.
	ErrMissingStudent = errors.New("student id required")
)

// MeetingNotFoundError is returned when the meeting id does not resolve.
type MeetingNotFoundError struct {
	MeetingID string
	StudentID string
}

func (e *MeetingNotFoundError) Error() string {
	return fmt.Sprintf("meeting %s not found (student %s)", e.MeetingID, e.StudentID)
}

// NotEligibleError is returned when the engine refuses the registration.
type NotEligibleError struct {
	MeetingID string
	StudentID string
	Phase     eligibility.Phase
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("student %s cannot register for meeting %s: %s", e.StudentID, e.MeetingID, e.Reason())
}

// Reason is a user-facing explanation of the phase.
func (e *NotEligibleError) Reason() string {
	switch e.Phase {
	case eligibility.PhaseNotStarted:
		return "meeting not yet open"
	case eligibility.PhaseEnded:
		return "meeting already ended"
	case eligibility.PhaseTerminal:
		return "meeting is closed"
	default:
		return string(e.Phase)
	}
}

// CategoryResolutionError means neither the meeting nor the student carry a
// category, which points at inconsistent upstream data.
type CategoryResolutionError struct {
	MeetingID string
	StudentID string
}

func (e *CategoryResolutionError) Error() string {
	return fmt.Sprintf("no category for student %s on meeting %s", e.StudentID, e.MeetingID)
}

// TransientStorageError wraps timeouts and connection failures. Callers may
// retry with backoff.
type TransientStorageError struct {
	Op        string
	MeetingID string
	StudentID string
	Err       error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("%s (meeting %s, student %s): %v", e.Op, e.MeetingID, e.StudentID, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var t *TransientStorageError
	return errors.As(err, &t)
}
