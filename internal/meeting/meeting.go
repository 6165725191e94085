package meeting

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the persisted lifecycle state of a meeting.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ErrInvalidStatus is returned by ParseStatus for values outside the enum.
var ErrInvalidStatus = errors.New("invalid meeting status")

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.TrimSpace(raw)); s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// Terminal reports whether no further attendance may be recorded.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Meeting represents a scheduled live session of a category.
type Meeting struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	CategoryID    string    `json:"category_id,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	DurationHours float64   `json:"duration_hours"`
	IsVirtual     bool      `json:"is_virtual"`
	Status        Status    `json:"status"`

	// Only meaningful when IsVirtual.
	ConferenceLink     string `json:"conference_link,omitempty"`
	ConferencePassword string `json:"conference_password,omitempty"`
	UseCustomLink      bool   `json:"use_custom_link"`

	// Only meaningful when not IsVirtual.
	Location string `json:"location,omitempty"`
}

// Category is the cohort owning meetings and students.
type Category struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	ConferenceLink     string `json:"conference_link,omitempty"`
	ConferencePassword string `json:"conference_password,omitempty"`
}

// Conference is the resolved conferencing info for a virtual meeting.
type Conference struct {
	Link     string `json:"link,omitempty"`
	Password string `json:"password,omitempty"`
}

// ResolveConference picks the meeting's own link when it opted into a
// custom one, otherwise the category's. cat may be nil.
func ResolveConference(m Meeting, cat *Category) *Conference {
	if !m.IsVirtual {
		return nil
	}
	var conf Conference
	if m.UseCustomLink && m.ConferenceLink != "" {
		conf.Link = m.ConferenceLink
	} else if cat != nil {
		conf.Link = cat.ConferenceLink
	}
	conf.Password = m.ConferencePassword
	if conf.Password == "" && cat != nil {
		conf.Password = cat.ConferencePassword
	}
	if conf.Link == "" && conf.Password == "" {
		return nil
	}
	return &conf
}
