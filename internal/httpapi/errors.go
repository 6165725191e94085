package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"campus/internal/attendance"
	"campus/internal/eligibility"
	"campus/internal/meeting"
	"campus/internal/reporting"
)

// writeError maps service errors onto status codes.
func writeError(c *gin.Context, err error) {
	var (
		notFound   *attendance.MeetingNotFoundError
		notElig    *attendance.NotEligibleError
		unresolved *attendance.CategoryResolutionError
		invalid    *eligibility.InvalidMeetingError
	)
	switch {
	case errors.Is(err, attendance.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "meeting not found", "meeting_id": notFound.MeetingID})
	case errors.As(err, &notElig):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      notElig.Reason(),
			"phase":      notElig.Phase,
			"meeting_id": notElig.MeetingID,
		})
	case errors.Is(err, attendance.ErrMissingStudent), errors.Is(err, meeting.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &unresolved):
		reporting.Error(nil, "category resolution failed", err,
			"meeting_id", unresolved.MeetingID, "student_id", unresolved.StudentID)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no category assigned"})
	case errors.As(err, &invalid):
		reporting.Error(nil, "meeting has invalid schedule", err, "meeting_id", invalid.MeetingID)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "meeting schedule is invalid", "meeting_id": invalid.MeetingID})
	case attendance.IsTransient(err):
		slog.Warn("transient storage error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "please try again", "retry": true})
	default:
		reporting.Error(nil, "request failed", err, "path", c.FullPath())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
