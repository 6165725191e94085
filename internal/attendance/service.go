package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"campus/internal/eligibility"
	"campus/internal/meeting"
	"campus/internal/metrics"
)

const unknown = "unknown"

// Record is evidence that a student registered presence at a meeting.
type Record struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"student_id"`
	MeetingID    string     `json:"meeting_id"`
	CategoryID   string     `json:"category_id"`
	RecordedAt   time.Time  `json:"recorded_at"`
	Attended     bool       `json:"attended"`
	WasLate      bool       `json:"was_late"`
	SourceIP     string     `json:"source_ip"`
	UserAgent    string     `json:"user_agent"`
	LastAccessAt *time.Time `json:"last_access_at,omitempty"`
}

// ClientMetadata is best-effort request information stored with a record.
type ClientMetadata struct {
	SourceIP  string
	UserAgent string
}

func (m ClientMetadata) normalized() ClientMetadata {
	m.SourceIP = strings.TrimSpace(m.SourceIP)
	m.UserAgent = strings.TrimSpace(m.UserAgent)
	if m.SourceIP == "" {
		m.SourceIP = unknown
	}
	if m.UserAgent == "" {
		m.UserAgent = unknown
	}
	return m
}

// Outcome is the result of a registration. Created is false when an
// existing record was returned.
type Outcome struct {
	Created bool   `json:"created"`
	Record  Record `json:"record"`
}

// Service records attendance and applies the lifecycle rules.
type Service struct {
	repo    Repository
	rules   eligibility.Rules
	locker  Locker
	timeout time.Duration
	now     func() time.Time
	log     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRules overrides the window constants.
func WithRules(r eligibility.Rules) Option { return func(s *Service) { s.rules = r } }

// WithLocker adds per-(student, meeting) locking around create-if-absent.
func WithLocker(l Locker) Option { return func(s *Service) { s.locker = l } }

// WithTimeout bounds every repository call.
func WithTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the logger used for completion and failure events.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.log = l } }

// NewService creates a service backed by a repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		rules:   eligibility.DefaultRules(),
		timeout: 5 * time.Second,
		now:     time.Now,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rules returns the window constants in use.
func (s *Service) Rules() eligibility.Rules { return s.rules }

// Register records that studentID attended meetingID. Eligibility is always
// re-evaluated here; a repeat registration returns the existing record.
func (s *Service) Register(ctx context.Context, studentID, meetingID string, meta ClientMetadata) (Outcome, error) {
	return s.register(ctx, "", studentID, meetingID, meta)
}

// CheckIn registers studentID on behalf of an administrator, typically for
// in-person meetings where there is no link to join.
func (s *Service) CheckIn(ctx context.Context, adminID, studentID, meetingID string, meta ClientMetadata) (Outcome, error) {
	if adminID == "" {
		return Outcome{}, ErrUnauthenticated
	}
	if studentID == "" {
		return Outcome{}, ErrMissingStudent
	}
	return s.register(ctx, adminID, studentID, meetingID, meta)
}

func (s *Service) register(ctx context.Context, actor, studentID, meetingID string, meta ClientMetadata) (Outcome, error) {
	if studentID == "" {
		return Outcome{}, ErrUnauthenticated
	}
	log := s.log.With("meeting_id", meetingID, "student_id", studentID)
	if actor != "" {
		log = log.With("actor", actor)
	}
	if meetingID == "" {
		metrics.Registrations.WithLabelValues("not_found").Inc()
		return Outcome{}, &MeetingNotFoundError{StudentID: studentID}
	}

	now := s.now()
	m, err := s.fetchMeeting(ctx, studentID, meetingID)
	if err != nil {
		metrics.Registrations.WithLabelValues(outcomeLabel(err)).Inc()
		log.Warn("registration rejected", "error", err)
		return Outcome{}, err
	}

	v, err := s.rules.Evaluate(*m, now)
	if err != nil {
		metrics.Registrations.WithLabelValues("invalid").Inc()
		log.Error("meeting has invalid schedule", "error", err)
		return Outcome{}, err
	}
	metrics.Verdicts.WithLabelValues(string(v.Phase)).Inc()
	log = log.With("phase", v.Phase)

	// Auto-completion runs whether or not the registration succeeds. The
	// verdict above was taken on the pre-completion status.
	defer func() { _, _ = s.autoComplete(ctx, *m, now, "registration") }()

	if !v.CanRegisterAttendance {
		metrics.Registrations.WithLabelValues("not_eligible").Inc()
		log.Info("registration not eligible")
		return Outcome{}, &NotEligibleError{MeetingID: meetingID, StudentID: studentID, Phase: v.Phase}
	}

	out, err := s.recordOnce(ctx, *m, studentID, v, meta.normalized(), now)
	if err != nil {
		metrics.Registrations.WithLabelValues(outcomeLabel(err)).Inc()
		log.Error("registration failed", "error", err)
		return Outcome{}, err
	}
	if out.Created {
		metrics.Registrations.WithLabelValues("created").Inc()
		log.Info("attendance recorded", "record_id", out.Record.ID, "was_late", out.Record.WasLate)
	} else {
		metrics.Registrations.WithLabelValues("existing").Inc()
		log.Info("attendance already recorded", "record_id", out.Record.ID)
	}
	return out, nil
}

func (s *Service) recordOnce(ctx context.Context, m meeting.Meeting, studentID string, v eligibility.Verdict, meta ClientMetadata, now time.Time) (Outcome, error) {
	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, lockKey(studentID, m.ID))
		if err != nil {
			return Outcome{}, &TransientStorageError{Op: "lock", MeetingID: m.ID, StudentID: studentID, Err: err}
		}
		defer unlock()
	}

	var existing *Record
	err := s.call(ctx, "fetch_attendance", m.ID, studentID, func(ctx context.Context) (err error) {
		existing, err = s.repo.FetchAttendance(ctx, studentID, m.ID)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	if existing != nil {
		return s.repeat(ctx, *existing, meta, now), nil
	}

	categoryID := m.CategoryID
	if categoryID == "" {
		err := s.call(ctx, "fetch_student_category", m.ID, studentID, func(ctx context.Context) (err error) {
			categoryID, err = s.repo.FetchStudentCategory(ctx, studentID)
			return err
		})
		if err != nil {
			return Outcome{}, err
		}
		if categoryID == "" {
			return Outcome{}, &CategoryResolutionError{MeetingID: m.ID, StudentID: studentID}
		}
	}

	rec := Record{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		MeetingID:  m.ID,
		CategoryID: categoryID,
		RecordedAt: now.UTC(),
		Attended:   true,
		WasLate:    v.IsLate,
		SourceIP:   meta.SourceIP,
		UserAgent:  meta.UserAgent,
	}
	var created Record
	err = s.call(ctx, "create_attendance", m.ID, studentID, func(ctx context.Context) (err error) {
		created, err = s.repo.CreateAttendance(ctx, rec)
		return err
	})
	if errors.Is(err, ErrDuplicateAttendance) {
		// Lost a race with a concurrent registration; return the winner.
		err = s.call(ctx, "fetch_attendance", m.ID, studentID, func(ctx context.Context) (err error) {
			existing, err = s.repo.FetchAttendance(ctx, studentID, m.ID)
			return err
		})
		if err != nil {
			return Outcome{}, err
		}
		if existing == nil {
			return Outcome{}, fmt.Errorf("attendance for student %s on meeting %s reported duplicate but not found", studentID, m.ID)
		}
		return Outcome{Created: false, Record: *existing}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Created: true, Record: created}, nil
}

// repeat touches the last-access metadata of an existing record. A failed
// touch does not fail the registration.
func (s *Service) repeat(ctx context.Context, rec Record, meta ClientMetadata, now time.Time) Outcome {
	err := s.call(ctx, "touch_attendance", rec.MeetingID, rec.StudentID, func(ctx context.Context) error {
		return s.repo.TouchAttendance(ctx, rec.ID, now.UTC(), meta)
	})
	if err != nil {
		s.log.Warn("touch attendance failed", "record_id", rec.ID, "error", err)
	} else {
		at := now.UTC()
		rec.LastAccessAt = &at
	}
	return Outcome{Created: false, Record: rec}
}

func (s *Service) autoComplete(ctx context.Context, m meeting.Meeting, now time.Time, trigger string) (bool, error) {
	due, err := s.rules.DueForCompletion(m, now)
	if err != nil || !due {
		return false, err
	}
	var changed bool
	err = s.call(ctx, "complete_meeting", m.ID, "", func(ctx context.Context) (err error) {
		changed, err = s.repo.CompleteMeeting(ctx, m.ID)
		return err
	})
	if err != nil {
		s.log.Warn("auto-completion failed", "meeting_id", m.ID, "trigger", trigger, "error", err)
		return false, err
	}
	if changed {
		metrics.AutoCompletions.WithLabelValues(trigger).Inc()
		s.log.Info("meeting auto-completed", "meeting_id", m.ID, "trigger", trigger)
	}
	return changed, nil
}

// CompleteIfDue applies the auto-completion rule to one meeting.
func (s *Service) CompleteIfDue(ctx context.Context, meetingID string) (bool, error) {
	m, err := s.fetchMeeting(ctx, "", meetingID)
	if err != nil {
		return false, err
	}
	return s.autoComplete(ctx, *m, s.now(), "request")
}

// Sweep applies the auto-completion rule to every started, non-terminal
// meeting and returns how many were completed.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	var open []meeting.Meeting
	err := s.call(ctx, "list_open_meetings", "", "", func(ctx context.Context) (err error) {
		open, err = s.repo.ListOpenMeetings(ctx, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, m := range open {
		if ctx.Err() != nil {
			return completed, ctx.Err()
		}
		changed, err := s.autoComplete(ctx, m, now, "sweep")
		if err != nil {
			var invalid *eligibility.InvalidMeetingError
			if errors.As(err, &invalid) {
				s.log.Warn("sweep skipped invalid meeting", "meeting_id", m.ID, "error", err)
				continue
			}
			if IsTransient(err) {
				return completed, err
			}
			continue
		}
		if changed {
			completed++
		}
	}
	return completed, nil
}

// SetStatus is the administrator's direct status change. Only the value is
// validated; the engine is bypassed.
func (s *Service) SetStatus(ctx context.Context, meetingID, raw string) (meeting.Status, error) {
	status, err := meeting.ParseStatus(raw)
	if err != nil {
		return "", err
	}
	err = s.call(ctx, "patch_meeting_status", meetingID, "", func(ctx context.Context) error {
		return s.repo.PatchMeetingStatus(ctx, meetingID, status)
	})
	if errors.Is(err, ErrNotFound) {
		return "", &MeetingNotFoundError{MeetingID: meetingID}
	}
	if err != nil {
		return "", err
	}
	s.log.Info("meeting status set", "meeting_id", meetingID, "status", status)
	return status, nil
}

// AttendedMeetings returns the subset of meetingIDs the student attended.
func (s *Service) AttendedMeetings(ctx context.Context, studentID string, meetingIDs []string) ([]string, error) {
	if studentID == "" {
		return nil, ErrUnauthenticated
	}
	if len(meetingIDs) == 0 {
		return []string{}, nil
	}
	var ids []string
	err := s.call(ctx, "list_attended_meetings", "", studentID, func(ctx context.Context) (err error) {
		ids, err = s.repo.ListAttendedMeetings(ctx, studentID, meetingIDs)
		return err
	})
	if ids == nil {
		ids = []string{}
	}
	return ids, err
}

// MeetingAttendance lists all records of a meeting, oldest first.
func (s *Service) MeetingAttendance(ctx context.Context, meetingID string) ([]Record, error) {
	if _, err := s.fetchMeeting(ctx, "", meetingID); err != nil {
		return nil, err
	}
	var recs []Record
	err := s.call(ctx, "list_meeting_attendance", meetingID, "", func(ctx context.Context) (err error) {
		recs, err = s.repo.ListMeetingAttendance(ctx, meetingID)
		return err
	})
	return recs, err
}

// Summary is a student's attendance within their category.
type Summary struct {
	StudentID      string   `json:"student_id"`
	CategoryID     string   `json:"category_id"`
	Records        []Record `json:"records"`
	HeldMeetings   int      `json:"held_meetings"`
	AttendanceRate int      `json:"attendance_rate"`
}

// StudentSummary counts the student's records against the meetings held in
// their category: completed ones and those whose join window has opened.
// The rate is capped at 100 since a meeting can be cancelled after people
// joined it.
func (s *Service) StudentSummary(ctx context.Context, studentID string) (Summary, error) {
	if studentID == "" {
		return Summary{}, ErrUnauthenticated
	}
	categoryID, err := s.studentCategory(ctx, studentID)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{StudentID: studentID, CategoryID: categoryID}
	err = s.call(ctx, "list_student_attendance", "", studentID, func(ctx context.Context) (err error) {
		sum.Records, err = s.repo.ListStudentAttendance(ctx, studentID, categoryID)
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	err = s.call(ctx, "count_held_meetings", "", studentID, func(ctx context.Context) (err error) {
		sum.HeldMeetings, err = s.repo.CountHeldMeetings(ctx, categoryID, s.now().Add(s.rules.JoinLead))
		return err
	})
	if err != nil {
		return Summary{}, err
	}
	if sum.Records == nil {
		sum.Records = []Record{}
	}
	if sum.HeldMeetings > 0 {
		sum.AttendanceRate = min(100, int(math.Round(float64(len(sum.Records))/float64(sum.HeldMeetings)*100)))
	}
	return sum, nil
}

// Listing is a meeting as shown to a student.
type Listing struct {
	Meeting    meeting.Meeting     `json:"meeting"`
	Verdict    eligibility.Verdict `json:"verdict"`
	Windows    eligibility.Windows `json:"windows"`
	Message    string              `json:"message"`
	Conference *meeting.Conference `json:"conference,omitempty"`
}

// Inspect evaluates one meeting for display. The conference info is only
// included while the meeting can be joined.
func (s *Service) Inspect(ctx context.Context, meetingID string) (Listing, error) {
	m, err := s.fetchMeeting(ctx, "", meetingID)
	if err != nil {
		return Listing{}, err
	}
	cat, err := s.category(ctx, m.CategoryID)
	if err != nil {
		return Listing{}, err
	}
	return s.listing(*m, cat, s.now())
}

// Upcoming lists the next meetings of the student's category that are not
// started or currently joinable, soonest first.
func (s *Service) Upcoming(ctx context.Context, studentID string, limit int) ([]Listing, error) {
	if studentID == "" {
		return nil, ErrUnauthenticated
	}
	if limit <= 0 {
		limit = 5
	}
	categoryID, err := s.studentCategory(ctx, studentID)
	if err != nil {
		return nil, err
	}
	cat, err := s.category(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	// A meeting that started up to the longest allowed duration ago may
	// still be joinable.
	from := now.Add(-time.Duration(eligibility.MaxDurationHours * float64(time.Hour)))
	var ms []meeting.Meeting
	err = s.call(ctx, "list_upcoming_meetings", "", studentID, func(ctx context.Context) (err error) {
		ms, err = s.repo.ListUpcomingMeetings(ctx, categoryID, from)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Listing, 0, limit)
	for _, m := range ms {
		l, err := s.listing(m, cat, now)
		if err != nil {
			s.log.Warn("upcoming skipped invalid meeting", "meeting_id", m.ID, "error", err)
			continue
		}
		if l.Verdict.Phase != eligibility.PhaseNotStarted && l.Verdict.Phase != eligibility.PhaseJoinable {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Service) listing(m meeting.Meeting, cat *meeting.Category, now time.Time) (Listing, error) {
	w, err := s.rules.Windows(m)
	if err != nil {
		return Listing{}, err
	}
	v, err := s.rules.Evaluate(m, now)
	if err != nil {
		return Listing{}, err
	}
	l := Listing{
		Meeting: m,
		Verdict: v,
		Windows: w,
		Message: s.rules.Describe(m, v, now),
	}
	// Links and passwords stay server-side until joining is possible.
	l.Meeting.ConferenceLink = ""
	l.Meeting.ConferencePassword = ""
	if v.CanJoin {
		l.Conference = meeting.ResolveConference(m, cat)
	}
	return l, nil
}

func (s *Service) fetchMeeting(ctx context.Context, studentID, meetingID string) (*meeting.Meeting, error) {
	var m *meeting.Meeting
	err := s.call(ctx, "fetch_meeting", meetingID, studentID, func(ctx context.Context) (err error) {
		m, err = s.repo.FetchMeeting(ctx, meetingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &MeetingNotFoundError{MeetingID: meetingID, StudentID: studentID}
	}
	return m, nil
}

func (s *Service) studentCategory(ctx context.Context, studentID string) (string, error) {
	var categoryID string
	err := s.call(ctx, "fetch_student_category", "", studentID, func(ctx context.Context) (err error) {
		categoryID, err = s.repo.FetchStudentCategory(ctx, studentID)
		return err
	})
	if err != nil {
		return "", err
	}
	if categoryID == "" {
		return "", &CategoryResolutionError{StudentID: studentID}
	}
	return categoryID, nil
}

func (s *Service) category(ctx context.Context, id string) (*meeting.Category, error) {
	if id == "" {
		return nil, nil
	}
	var cat *meeting.Category
	err := s.call(ctx, "fetch_category", "", "", func(ctx context.Context) (err error) {
		cat, err = s.repo.FetchCategory(ctx, id)
		return err
	})
	return cat, err
}

// call runs one repository operation under the storage timeout and
// classifies its error.
func (s *Service) call(ctx context.Context, op, meetingID, studentID string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := time.Now()
	err := fn(ctx)
	metrics.StorageSeconds.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if err == nil || errors.Is(err, ErrDuplicateAttendance) || errors.Is(err, ErrNotFound) {
		return err
	}
	if transient(err) {
		return &TransientStorageError{Op: op, MeetingID: meetingID, StudentID: studentID, Err: err}
	}
	return fmt.Errorf("%s (meeting %s, student %s): %w", op, meetingID, studentID, err)
}

func outcomeLabel(err error) string {
	var notFound *MeetingNotFoundError
	if errors.As(err, &notFound) {
		return "not_found"
	}
	return "error"
}
