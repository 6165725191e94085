package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"campus/internal/meeting"
)

// MemoryRepository is a Repository held in process memory. The pair
// uniqueness is enforced under its mutex.
type MemoryRepository struct {
	mu         sync.RWMutex
	meetings   map[string]meeting.Meeting
	categories map[string]meeting.Category
	students   map[string]string // student id -> category id
	records    map[string]Record // record id -> record
	byPair     map[string]string // student:meeting -> record id
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		meetings:   make(map[string]meeting.Meeting),
		categories: make(map[string]meeting.Category),
		students:   make(map[string]string),
		records:    make(map[string]Record),
		byPair:     make(map[string]string),
	}
}

func pairKey(studentID, meetingID string) string { return studentID + ":" + meetingID }

// PutMeeting inserts or replaces a meeting.
func (r *MemoryRepository) PutMeeting(m meeting.Meeting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.Status == "" {
		m.Status = meeting.StatusScheduled
	}
	r.meetings[m.ID] = m
}

// PutCategory inserts or replaces a category.
func (r *MemoryRepository) PutCategory(c meeting.Category) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.categories[c.ID] = c
}

// PutStudent assigns a student to a category ("" for none).
func (r *MemoryRepository) PutStudent(studentID, categoryID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[studentID] = categoryID
}

// RecordCount returns the number of stored attendance records.
func (r *MemoryRepository) RecordCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func (r *MemoryRepository) FetchMeeting(ctx context.Context, id string) (*meeting.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (r *MemoryRepository) FetchCategory(ctx context.Context, id string) (*meeting.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryRepository) FetchStudentCategory(ctx context.Context, studentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.students[studentID], nil
}

func (r *MemoryRepository) FetchAttendance(ctx context.Context, studentID, meetingID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey(studentID, meetingID)]
	if !ok {
		return nil, nil
	}
	rec := r.records[id]
	return &rec, nil
}

func (r *MemoryRepository) CreateAttendance(ctx context.Context, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey(rec.StudentID, rec.MeetingID)
	if _, ok := r.byPair[key]; ok {
		return Record{}, ErrDuplicateAttendance
	}
	r.records[rec.ID] = rec
	r.byPair[key] = rec.ID
	return rec, nil
}

func (r *MemoryRepository) TouchAttendance(ctx context.Context, id string, at time.Time, meta ClientMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.LastAccessAt = &at
	rec.SourceIP = meta.SourceIP
	rec.UserAgent = meta.UserAgent
	r.records[id] = rec
	return nil
}

func (r *MemoryRepository) PatchMeetingStatus(ctx context.Context, id string, status meeting.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok {
		return ErrNotFound
	}
	m.Status = status
	r.meetings[id] = m
	return nil
}

func (r *MemoryRepository) CompleteMeeting(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[id]
	if !ok {
		return false, ErrNotFound
	}
	if m.Status.Terminal() {
		return false, nil
	}
	m.Status = meeting.StatusCompleted
	r.meetings[id] = m
	return true, nil
}

func (r *MemoryRepository) ListOpenMeetings(ctx context.Context, startedBefore time.Time) ([]meeting.Meeting, error) {
	return r.filterMeetings(ctx, func(m meeting.Meeting) bool {
		return !m.Status.Terminal() && !m.ScheduledAt.IsZero() && !m.ScheduledAt.After(startedBefore)
	})
}

func (r *MemoryRepository) ListUpcomingMeetings(ctx context.Context, categoryID string, from time.Time) ([]meeting.Meeting, error) {
	return r.filterMeetings(ctx, func(m meeting.Meeting) bool {
		return m.CategoryID == categoryID && !m.Status.Terminal() && !m.ScheduledAt.Before(from)
	})
}

func (r *MemoryRepository) CountHeldMeetings(ctx context.Context, categoryID string, openedBefore time.Time) (int, error) {
	ms, err := r.filterMeetings(ctx, func(m meeting.Meeting) bool {
		if m.CategoryID != categoryID || m.Status == meeting.StatusCancelled {
			return false
		}
		return m.Status == meeting.StatusCompleted ||
			(!m.ScheduledAt.IsZero() && !m.ScheduledAt.After(openedBefore))
	})
	return len(ms), err
}

func (r *MemoryRepository) filterMeetings(ctx context.Context, keep func(meeting.Meeting) bool) ([]meeting.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []meeting.Meeting
	for _, m := range r.meetings {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r *MemoryRepository) ListAttendedMeetings(ctx context.Context, studentID string, meetingIDs []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, meetingID := range meetingIDs {
		if id, ok := r.byPair[pairKey(studentID, meetingID)]; ok && r.records[id].Attended {
			out = append(out, meetingID)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListMeetingAttendance(ctx context.Context, meetingID string) ([]Record, error) {
	recs, err := r.filterRecords(ctx, func(rec Record) bool { return rec.MeetingID == meetingID })
	sort.Slice(recs, func(i, j int) bool { return recs[i].RecordedAt.Before(recs[j].RecordedAt) })
	return recs, err
}

func (r *MemoryRepository) ListStudentAttendance(ctx context.Context, studentID, categoryID string) ([]Record, error) {
	recs, err := r.filterRecords(ctx, func(rec Record) bool {
		return rec.StudentID == studentID && rec.CategoryID == categoryID
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].RecordedAt.After(recs[j].RecordedAt) })
	return recs, err
}

func (r *MemoryRepository) filterRecords(ctx context.Context, keep func(Record) bool) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Record
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}
