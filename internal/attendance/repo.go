package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus/internal/meeting"
)

// SQLRepository persists meetings and attendance through database/sql. The
// statements run unchanged on Postgres (pgx) and SQLite (go-sqlite3).
type SQLRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository creates a repo.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const meetingColumns = `id, title, description, category_id, scheduled_at, duration_hours,
	is_virtual, status, conference_link, conference_password, use_custom_link, location`

const recordColumns = `id, student_id, meeting_id, category_id, recorded_at, attended,
	was_late, source_ip, user_agent, last_access_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (meeting.Meeting, error) {
	var (
		m          meeting.Meeting
		categoryID sql.NullString
		scheduled  sql.NullTime
		status     string
	)
	err := row.Scan(&m.ID, &m.Title, &m.Description, &categoryID, &scheduled, &m.DurationHours,
		&m.IsVirtual, &status, &m.ConferenceLink, &m.ConferencePassword, &m.UseCustomLink, &m.Location)
	if err != nil {
		return meeting.Meeting{}, err
	}
	m.CategoryID = categoryID.String
	if scheduled.Valid {
		m.ScheduledAt = scheduled.Time.UTC()
	}
	m.Status = meeting.Status(status)
	return m, nil
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec        Record
		lastAccess sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.MeetingID, &rec.CategoryID, &rec.RecordedAt, &rec.Attended,
		&rec.WasLate, &rec.SourceIP, &rec.UserAgent, &lastAccess)
	if err != nil {
		return Record{}, err
	}
	rec.RecordedAt = rec.RecordedAt.UTC()
	if lastAccess.Valid {
		at := lastAccess.Time.UTC()
		rec.LastAccessAt = &at
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// dbTime normalizes an instant before it is stored or compared. SQLite
// keeps timestamps as text, so mixed fractional seconds would sort wrong.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: dbTime(t), Valid: true}
}

// placeholders returns "$from, $from+1, ..." for n values.
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

// SaveCategory inserts or updates a category.
func (r *SQLRepository) SaveCategory(ctx context.Context, c meeting.Category) error {
	if c.ID == "" {
		return errors.New("category id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, conference_link, conference_password)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			conference_link = excluded.conference_link,
			conference_password = excluded.conference_password
	`, c.ID, c.Name, c.ConferenceLink, c.ConferencePassword)
	return err
}

// SaveStudent inserts or updates a student's category assignment.
func (r *SQLRepository) SaveStudent(ctx context.Context, studentID, categoryID string) error {
	if studentID == "" {
		return errors.New("student id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, category_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET category_id = excluded.category_id
	`, studentID, nullString(categoryID))
	return err
}

// SaveMeeting inserts or updates a meeting.
func (r *SQLRepository) SaveMeeting(ctx context.Context, m meeting.Meeting) error {
	if m.ID == "" {
		return errors.New("meeting id required")
	}
	if m.Status == "" {
		m.Status = meeting.StatusScheduled
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO meetings (`+meetingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category_id = excluded.category_id,
			scheduled_at = excluded.scheduled_at,
			duration_hours = excluded.duration_hours,
			is_virtual = excluded.is_virtual,
			status = excluded.status,
			conference_link = excluded.conference_link,
			conference_password = excluded.conference_password,
			use_custom_link = excluded.use_custom_link,
			location = excluded.location
	`, m.ID, m.Title, m.Description, nullString(m.CategoryID), nullTime(m.ScheduledAt), m.DurationHours,
		m.IsVirtual, string(m.Status), m.ConferenceLink, m.ConferencePassword, m.UseCustomLink, m.Location)
	return err
}

func (r *SQLRepository) FetchMeeting(ctx context.Context, id string) (*meeting.Meeting, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id)
	m, err := scanMeeting(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *SQLRepository) FetchCategory(ctx context.Context, id string) (*meeting.Category, error) {
	var c meeting.Category
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, conference_link, conference_password FROM categories WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.ConferenceLink, &c.ConferencePassword)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (r *SQLRepository) FetchStudentCategory(ctx context.Context, studentID string) (string, error) {
	var categoryID sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT category_id FROM students WHERE id = $1`, studentID).Scan(&categoryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return categoryID.String, nil
}

func (r *SQLRepository) FetchAttendance(ctx context.Context, studentID, meetingID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance WHERE student_id = $1 AND meeting_id = $2
	`, studentID, meetingID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// CreateAttendance relies on the unique (student_id, meeting_id) index: a
// conflicting insert returns no row.
func (r *SQLRepository) CreateAttendance(ctx context.Context, rec Record) (Record, error) {
	rec.RecordedAt = dbTime(rec.RecordedAt)
	var id string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (student_id, meeting_id) DO NOTHING
		RETURNING id
	`, rec.ID, rec.StudentID, rec.MeetingID, rec.CategoryID, rec.RecordedAt, rec.Attended,
		rec.WasLate, rec.SourceIP, rec.UserAgent, sql.NullTime{}).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrDuplicateAttendance
		}
		return Record{}, err
	}
	rec.ID = id
	return rec, nil
}

func (r *SQLRepository) TouchAttendance(ctx context.Context, id string, at time.Time, meta ClientMetadata) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance SET last_access_at = $1, source_ip = $2, user_agent = $3 WHERE id = $4
	`, dbTime(at), meta.SourceIP, meta.UserAgent, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *SQLRepository) PatchMeetingStatus(ctx context.Context, id string, status meeting.Status) error {
	res, err := r.db.ExecContext(ctx, `UPDATE meetings SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// CompleteMeeting guards on the current status in the same statement so a
// concurrent cancellation is never overwritten.
func (r *SQLRepository) CompleteMeeting(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE meetings SET status = 'completed'
		WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	m, err := r.FetchMeeting(ctx, id)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *SQLRepository) ListOpenMeetings(ctx context.Context, startedBefore time.Time) ([]meeting.Meeting, error) {
	return r.queryMeetings(ctx, `
		SELECT `+meetingColumns+` FROM meetings
		WHERE status NOT IN ('completed', 'cancelled')
			AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at
	`, dbTime(startedBefore))
}

func (r *SQLRepository) ListUpcomingMeetings(ctx context.Context, categoryID string, from time.Time) ([]meeting.Meeting, error) {
	return r.queryMeetings(ctx, `
		SELECT `+meetingColumns+` FROM meetings
		WHERE category_id = $1
			AND status NOT IN ('completed', 'cancelled')
			AND scheduled_at >= $2
		ORDER BY scheduled_at
	`, categoryID, dbTime(from))
}

func (r *SQLRepository) queryMeetings(ctx context.Context, query string, args ...any) ([]meeting.Meeting, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []meeting.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *SQLRepository) CountHeldMeetings(ctx context.Context, categoryID string, openedBefore time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM meetings
		WHERE category_id = $1 AND status <> 'cancelled'
			AND (status = 'completed' OR (scheduled_at IS NOT NULL AND scheduled_at <= $2))
	`, categoryID, dbTime(openedBefore)).Scan(&n)
	return n, err
}

func (r *SQLRepository) ListAttendedMeetings(ctx context.Context, studentID string, meetingIDs []string) ([]string, error) {
	if len(meetingIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(meetingIDs)+1)
	args = append(args, studentID)
	for _, id := range meetingIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT meeting_id FROM attendance
		WHERE student_id = $1 AND attended AND meeting_id IN (`+placeholders(2, len(meetingIDs))+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *SQLRepository) ListMeetingAttendance(ctx context.Context, meetingID string) ([]Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance WHERE meeting_id = $1 ORDER BY recorded_at ASC
	`, meetingID)
}

func (r *SQLRepository) ListStudentAttendance(ctx context.Context, studentID, categoryID string) ([]Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM attendance
		WHERE student_id = $1 AND category_id = $2
		ORDER BY recorded_at DESC
	`, studentID, categoryID)
}

func (r *SQLRepository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
