package eligibility

import (
	"fmt"
	"time"

	"campus/internal/meeting"
)

// Describe renders the message shown next to a meeting for verdict v.
// It is presentation only; calendar-day comparisons belong here and never
// in Evaluate.
func (r Rules) Describe(m meeting.Meeting, v Verdict, now time.Time) string {
	switch v.Phase {
	case PhaseTerminal:
		if m.Status == meeting.StatusCancelled {
			return "This meeting was cancelled."
		}
		return "This meeting is completed."
	case PhaseEnded:
		return "This meeting has ended."
	case PhaseNotStarted:
		w, err := r.Windows(m)
		if err != nil {
			return "This meeting has not started."
		}
		opens := w.JoinOpensAt.Sub(now)
		if sameDay(w.StartsAt, now) {
			return fmt.Sprintf("Starts today at %s. Joining opens in %s.", w.StartsAt.Format("15:04"), countdown(opens))
		}
		return fmt.Sprintf("Starts %s. Joining opens in %s.", w.StartsAt.Format("Mon 2 Jan 15:04"), countdown(opens))
	case PhaseJoinable, PhaseAttendanceClosed:
		var msg string
		if m.IsVirtual {
			msg = "The meeting is open. Join now."
		} else if m.Location != "" {
			msg = fmt.Sprintf("In-person meeting at %s.", m.Location)
		} else {
			msg = "In-person meeting at the designated location."
		}
		if v.IsLate {
			msg += " Attendance will be recorded as late."
		}
		return msg
	}
	return ""
}

// Describe uses DefaultRules.
func Describe(m meeting.Meeting, v Verdict, now time.Time) string {
	return DefaultRules().Describe(m, v, now)
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// countdown formats d as "2d 3h", "1h 05m" or "12m".
func countdown(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	d = d.Truncate(time.Minute)
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	mins := int(d % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %02dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
