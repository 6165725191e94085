// Package eligibility decides whether a meeting can be joined and whether
// attendance may be registered at a given instant. Everything here is pure:
// the same meeting, instant and rules always yield the same verdict, so the
// UI and the registration endpoint can both call it.
package eligibility

import (
	"fmt"
	"math"
	"time"

	"campus/internal/meeting"
)

// Phase is the display phase of a meeting at an instant.
type Phase string

const (
	PhaseNotStarted Phase = "not-started"
	PhaseJoinable   Phase = "joinable"
	// Never produced by Evaluate: registration stays open until the meeting ends.
	PhaseAttendanceClosed Phase = "attendance-window-closed-but-joinable"
	PhaseEnded            Phase = "ended"
	PhaseTerminal         Phase = "ended-but-terminal"
)

// Duration bounds, in hours. The lower bound is exclusive.
const (
	MinDurationHours = 0.5
	MaxDurationHours = 8.0
)

// Rules holds the window constants.
type Rules struct {
	JoinLead         time.Duration // join window opens this long before the start
	LateAfter        time.Duration // registrations after start+LateAfter are late
	AutoCompleteLead time.Duration // completion is due this long before the end
	DefaultDuration  float64       // hours, used when a meeting has none
}

// DefaultRules returns the production window constants.
func DefaultRules() Rules {
	return Rules{
		JoinLead:         15 * time.Minute,
		LateAfter:        30 * time.Minute,
		AutoCompleteLead: 10 * time.Minute,
		DefaultDuration:  2,
	}
}

// Verdict is the engine output for one meeting at one instant.
type Verdict struct {
	Phase                 Phase `json:"phase"`
	CanJoin               bool  `json:"can_join"`
	CanRegisterAttendance bool  `json:"can_register_attendance"`
	IsLate                bool  `json:"is_late"`
}

// Windows are the instants derived from a meeting's schedule.
type Windows struct {
	JoinOpensAt    time.Time `json:"join_opens_at"`
	StartsAt       time.Time `json:"starts_at"`
	LateAfter      time.Time `json:"late_after"`
	EndsAt         time.Time `json:"ends_at"`
	AutoCompleteAt time.Time `json:"auto_complete_at"`
}

// InvalidMeetingError reports scheduling data the engine cannot work with.
type InvalidMeetingError struct {
	MeetingID string
	Reason    string
}

func (e *InvalidMeetingError) Error() string {
	return fmt.Sprintf("meeting %s is invalid: %s", e.MeetingID, e.Reason)
}

// Duration returns the effective meeting length.
func (r Rules) Duration(m meeting.Meeting) (time.Duration, error) {
	hours := m.DurationHours
	if hours == 0 {
		hours = r.DefaultDuration
	}
	if math.IsNaN(hours) || hours <= MinDurationHours || hours > MaxDurationHours {
		return 0, &InvalidMeetingError{
			MeetingID: m.ID,
			Reason:    fmt.Sprintf("duration %.2fh outside (%.1f, %.0f]", hours, MinDurationHours, MaxDurationHours),
		}
	}
	return time.Duration(hours * float64(time.Hour)), nil
}

// Windows computes the derived instants of m.
func (r Rules) Windows(m meeting.Meeting) (Windows, error) {
	if m.ScheduledAt.IsZero() {
		return Windows{}, &InvalidMeetingError{MeetingID: m.ID, Reason: "missing scheduled time"}
	}
	d, err := r.Duration(m)
	if err != nil {
		return Windows{}, err
	}
	end := m.ScheduledAt.Add(d)
	return Windows{
		JoinOpensAt:    m.ScheduledAt.Add(-r.JoinLead),
		StartsAt:       m.ScheduledAt,
		LateAfter:      m.ScheduledAt.Add(r.LateAfter),
		EndsAt:         end,
		AutoCompleteAt: end.Add(-r.AutoCompleteLead),
	}, nil
}

// Evaluate applies the decision table to m at now. First match wins:
// cancelled, completed, before the join window, inside it, after the end.
func (r Rules) Evaluate(m meeting.Meeting, now time.Time) (Verdict, error) {
	w, err := r.Windows(m)
	if err != nil {
		return Verdict{}, err
	}
	switch {
	case m.Status == meeting.StatusCancelled, m.Status == meeting.StatusCompleted:
		return Verdict{Phase: PhaseTerminal}, nil
	case now.Before(w.JoinOpensAt):
		return Verdict{Phase: PhaseNotStarted}, nil
	case !now.After(w.EndsAt):
		return Verdict{
			Phase:                 PhaseJoinable,
			CanJoin:               m.IsVirtual,
			CanRegisterAttendance: true,
			IsLate:                now.After(w.LateAfter),
		}, nil
	default:
		return Verdict{Phase: PhaseEnded}, nil
	}
}

// DueForCompletion reports whether the auto-completion rule applies to m
// at now. Terminal meetings are never due.
func (r Rules) DueForCompletion(m meeting.Meeting, now time.Time) (bool, error) {
	if m.Status.Terminal() {
		return false, nil
	}
	w, err := r.Windows(m)
	if err != nil {
		return false, err
	}
	return !now.Before(w.AutoCompleteAt), nil
}

// Evaluate uses DefaultRules.
func Evaluate(m meeting.Meeting, now time.Time) (Verdict, error) {
	return DefaultRules().Evaluate(m, now)
}
