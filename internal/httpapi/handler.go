package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campus/internal/attendance"
	"campus/internal/auth"
	"campus/internal/queue"
)

// Config carries the identity settings the handlers need.
type Config struct {
	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration
	// DevTokens exposes POST /v1/dev/token. Never enable in production.
	DevTokens bool
}

// Handler serves the attendance API.
type Handler struct {
	svc  *attendance.Service
	jobs queue.Queue
	cfg  Config
}

// New creates a handler.
func New(svc *attendance.Service, jobs queue.Queue, cfg Config) *Handler {
	return &Handler{svc: svc, jobs: jobs, cfg: cfg}
}

// Register mounts the API on r. The extra middleware runs after
// authentication, so it can key on the caller.
func (h *Handler) Register(r gin.IRouter, mw ...gin.HandlerFunc) {
	if h.cfg.DevTokens {
		r.POST("/v1/dev/token", h.devToken)
	}

	v1 := r.Group("/v1", auth.Bearer(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	v1.Use(mw...)

	v1.POST("/attendance/register", h.register)
	v1.POST("/attendance/check", h.check)
	v1.GET("/meetings/:id/eligibility", h.eligibility)
	v1.GET("/me/meetings", h.upcoming)
	v1.GET("/me/attendance", h.summary)

	admin := v1.Group("/admin", auth.RequireRole(auth.RoleAdmin, auth.RoleSuperadmin))
	admin.PATCH("/meetings/:id/status", h.setStatus)
	admin.POST("/meetings/:id/checkin", h.checkIn)
	admin.GET("/meetings/:id/attendance", h.meetingAttendance)
	admin.POST("/meetings/sweep", h.enqueueSweep)
	admin.POST("/meetings/:id/complete", h.enqueueComplete)
}

func metadata(c *gin.Context) attendance.ClientMetadata {
	return attendance.ClientMetadata{SourceIP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func (h *Handler) register(c *gin.Context) {
	var req struct {
		MeetingID string `json:"meeting_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.svc.Register(c.Request.Context(), auth.CurrentUserID(c), req.MeetingID, metadata(c))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

func (h *Handler) check(c *gin.Context) {
	var req struct {
		MeetingIDs []string `json:"meeting_ids" binding:"required,max=200,dive,required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ids, err := h.svc.AttendedMeetings(c.Request.Context(), auth.CurrentUserID(c), req.MeetingIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attended_meetings": ids})
}

func (h *Handler) eligibility(c *gin.Context) {
	l, err := h.svc.Inspect(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Handler) upcoming(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 || parsed > 50 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 0 and 50"})
			return
		}
		limit = parsed
	}
	meetings, err := h.svc.Upcoming(c.Request.Context(), auth.CurrentUserID(c), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings})
}

func (h *Handler) summary(c *gin.Context) {
	sum, err := h.svc.StudentSummary(c.Request.Context(), auth.CurrentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *Handler) setStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	status, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meeting_id": c.Param("id"), "status": status})
}

func (h *Handler) checkIn(c *gin.Context) {
	var req struct {
		StudentID string `json:"student_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.svc.CheckIn(c.Request.Context(), auth.CurrentUserID(c), req.StudentID, c.Param("id"), metadata(c))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	c.JSON(status, out)
}

func (h *Handler) meetingAttendance(c *gin.Context) {
	recs, err := h.svc.MeetingAttendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"meeting_id": c.Param("id"), "records": recs})
}

func (h *Handler) enqueueSweep(c *gin.Context) {
	h.enqueue(c, queue.Message{Type: queue.TypeSweep})
}

func (h *Handler) enqueueComplete(c *gin.Context) {
	h.enqueue(c, queue.Message{Type: queue.TypeComplete, MeetingID: c.Param("id")})
}

func (h *Handler) enqueue(c *gin.Context, msg queue.Message) {
	msg.QueuedAt = time.Now().UTC()
	if err := h.jobs.Publish(c.Request.Context(), msg); err != nil {
		writeError(c, &attendance.TransientStorageError{Op: "enqueue_" + msg.Type, MeetingID: msg.MeetingID, Err: err})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": msg.Type, "meeting_id": msg.MeetingID})
}

func (h *Handler) devToken(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Role   string `json:"role" binding:"omitempty,oneof=student admin superadmin"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = auth.RoleStudent
	}
	tok, err := auth.Issue(req.UserID, req.Role, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, tok)
}
