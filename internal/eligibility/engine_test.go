package eligibility

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus/internal/meeting"
)

var start = time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC)

func virtualMeeting() meeting.Meeting {
	return meeting.Meeting{
		ID:            "m1",
		ScheduledAt:   start,
		DurationHours: 2,
		IsVirtual:     true,
		Status:        meeting.StatusScheduled,
	}
}

func TestEvaluateBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		offset time.Duration
		phase  Phase
		late   bool
	}{
		{"16m before", -16 * time.Minute, PhaseNotStarted, false},
		{"15m before", -15 * time.Minute, PhaseJoinable, false},
		{"at start", 0, PhaseJoinable, false},
		{"29m after", 29 * time.Minute, PhaseJoinable, false},
		{"exactly 30m after", 30 * time.Minute, PhaseJoinable, false},
		{"31m after", 31 * time.Minute, PhaseJoinable, true},
		{"at end", 2 * time.Hour, PhaseJoinable, true},
		{"1m after end", 2*time.Hour + time.Minute, PhaseEnded, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Evaluate(virtualMeeting(), start.Add(tc.offset))
			require.NoError(t, err)
			assert.Equal(t, tc.phase, v.Phase)
			assert.Equal(t, tc.late, v.IsLate)
			assert.Equal(t, tc.phase == PhaseJoinable, v.CanRegisterAttendance)
		})
	}
}

func TestEvaluateTerminalStatusesNeverRegister(t *testing.T) {
	for _, status := range []meeting.Status{meeting.StatusCompleted, meeting.StatusCancelled} {
		m := virtualMeeting()
		m.Status = status
		for offset := -3 * time.Hour; offset <= 5*time.Hour; offset += 7 * time.Minute {
			v, err := Evaluate(m, start.Add(offset))
			require.NoError(t, err)
			assert.Equal(t, PhaseTerminal, v.Phase)
			assert.False(t, v.CanRegisterAttendance)
			assert.False(t, v.CanJoin)
		}
	}
}

func TestEvaluateJoinMatchesRegistrationForVirtual(t *testing.T) {
	virtual := virtualMeeting()
	presential := virtualMeeting()
	presential.IsVirtual = false
	presential.Location = "Room 4"

	for offset := -time.Hour; offset <= 3*time.Hour; offset += 5 * time.Minute {
		now := start.Add(offset)

		v, err := Evaluate(virtual, now)
		require.NoError(t, err)
		if v.Phase == PhaseJoinable {
			assert.Equal(t, v.CanRegisterAttendance, v.CanJoin, offset.String())
		}

		p, err := Evaluate(presential, now)
		require.NoError(t, err)
		assert.False(t, p.CanJoin, offset.String())
		assert.Equal(t, v.CanRegisterAttendance, p.CanRegisterAttendance, offset.String())
	}
}

func TestEvaluateScenarios(t *testing.T) {
	m := virtualMeeting()

	v, err := Evaluate(m, time.Date(2025, 6, 10, 19, 50, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PhaseJoinable, v.Phase)
	assert.True(t, v.CanJoin)
	assert.False(t, v.IsLate)

	v, err = Evaluate(m, time.Date(2025, 6, 10, 22, 5, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, v.Phase)
	assert.False(t, v.CanRegisterAttendance)
}

func TestEvaluateComparesInstantsAcrossZones(t *testing.T) {
	buenosAires := time.FixedZone("ART", -3*60*60)
	m := virtualMeeting()
	m.ScheduledAt = start.In(buenosAires)

	// 19:50Z is 16:50 local, still the same instant.
	v, err := Evaluate(m, time.Date(2025, 6, 10, 19, 50, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PhaseJoinable, v.Phase)

	// Next calendar day in UTC but still inside the meeting locally.
	m.ScheduledAt = time.Date(2025, 6, 10, 20, 30, 0, 0, buenosAires)
	v, err = Evaluate(m, time.Date(2025, 6, 11, 0, 15, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, PhaseJoinable, v.Phase)
}

func TestEvaluateFractionalDuration(t *testing.T) {
	m := virtualMeeting()
	m.DurationHours = 1.5

	v, err := Evaluate(m, start.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, PhaseJoinable, v.Phase)

	v, err = Evaluate(m, start.Add(91*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, v.Phase)
}

func TestEvaluateDefaultDuration(t *testing.T) {
	m := virtualMeeting()
	m.DurationHours = 0

	w, err := DefaultRules().Windows(m)
	require.NoError(t, err)
	assert.Equal(t, start.Add(2*time.Hour), w.EndsAt)
}

func TestEvaluateInvalidMeeting(t *testing.T) {
	missing := virtualMeeting()
	missing.ScheduledAt = time.Time{}
	_, err := Evaluate(missing, start)
	var invalid *InvalidMeetingError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "m1", invalid.MeetingID)

	for _, hours := range []float64{-1, 0.25, 0.5, 8.5} {
		m := virtualMeeting()
		m.DurationHours = hours
		_, err := Evaluate(m, start)
		assert.True(t, errors.As(err, &invalid), "duration %v", hours)
	}

	m := virtualMeeting()
	m.DurationHours = 8
	_, err = Evaluate(m, start)
	assert.NoError(t, err)
}

func TestDueForCompletion(t *testing.T) {
	rules := DefaultRules()
	m := virtualMeeting()

	due, err := rules.DueForCompletion(m, start.Add(109*time.Minute))
	require.NoError(t, err)
	assert.False(t, due)

	due, err = rules.DueForCompletion(m, start.Add(110*time.Minute))
	require.NoError(t, err)
	assert.True(t, due)

	due, err = rules.DueForCompletion(m, start.Add(10*time.Hour))
	require.NoError(t, err)
	assert.True(t, due)

	m.Status = meeting.StatusCancelled
	due, err = rules.DueForCompletion(m, start.Add(10*time.Hour))
	require.NoError(t, err)
	assert.False(t, due)
}

func TestCustomRules(t *testing.T) {
	rules := Rules{JoinLead: 10 * time.Minute, LateAfter: 15 * time.Minute, AutoCompleteLead: 0, DefaultDuration: 1}
	m := virtualMeeting()
	m.DurationHours = 0

	v, err := rules.Evaluate(m, start.Add(-12*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, PhaseNotStarted, v.Phase)

	v, err = rules.Evaluate(m, start.Add(16*time.Minute))
	require.NoError(t, err)
	assert.True(t, v.IsLate)

	v, err = rules.Evaluate(m, start.Add(61*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, PhaseEnded, v.Phase)
}
