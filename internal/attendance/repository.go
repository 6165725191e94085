package attendance

import (
	"context"
	"errors"
	"time"

	"campus/internal/meeting"
)

// ErrNotFound is returned by repositories when a row to update is missing.
var ErrNotFound = errors.New("not found")

// Repository is the content store the recorder reads and writes. Fetch
// methods return nil (or "") without error when nothing matches.
type Repository interface {
	FetchMeeting(ctx context.Context, id string) (*meeting.Meeting, error)
	FetchCategory(ctx context.Context, id string) (*meeting.Category, error)
	FetchStudentCategory(ctx context.Context, studentID string) (string, error)
	FetchAttendance(ctx context.Context, studentID, meetingID string) (*Record, error)

	// CreateAttendance must enforce one record per (student, meeting) and
	// return ErrDuplicateAttendance when the pair already exists.
	CreateAttendance(ctx context.Context, rec Record) (Record, error)
	TouchAttendance(ctx context.Context, id string, at time.Time, meta ClientMetadata) error

	// PatchMeetingStatus sets any status. CompleteMeeting only moves a
	// non-terminal meeting to completed and reports whether it did.
	PatchMeetingStatus(ctx context.Context, id string, status meeting.Status) error
	CompleteMeeting(ctx context.Context, id string) (bool, error)

	ListOpenMeetings(ctx context.Context, startedBefore time.Time) ([]meeting.Meeting, error)
	ListUpcomingMeetings(ctx context.Context, categoryID string, from time.Time) ([]meeting.Meeting, error)
	// CountHeldMeetings counts the category's non-cancelled meetings that
	// are completed or whose join window opened by openedBefore.
	CountHeldMeetings(ctx context.Context, categoryID string, openedBefore time.Time) (int, error)

	ListAttendedMeetings(ctx context.Context, studentID string, meetingIDs []string) ([]string, error)
	ListMeetingAttendance(ctx context.Context, meetingID string) ([]Record, error)
	ListStudentAttendance(ctx context.Context, studentID, categoryID string) ([]Record, error)
}
