package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"trackas/internal/geo"
	"trackas/internal/registration"
)

// ---------- Registration sessions ----------

type createSessionRequest struct {
	ClassID string `json:"class_id" binding:"required"`
}

// CreateSession opens a registration session for the class in a QR link.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.sessions.Create(c.Request.Context(), strings.TrimSpace(req.ClassID))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.Snapshot())
}

func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

type positionRequest struct {
	Latitude  any    `json:"latitude"`
	Longitude any    `json:"longitude"`
	Status    string `json:"status"`
}

// UpdatePosition accepts a device fix or a report that none is available.
func (h *Handler) UpdatePosition(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var pos registration.Position
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "denied", "unavailable":
		pos = registration.Denied()
	case "", "available":
		coord, ok := geo.Parse(req.Latitude, req.Longitude)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude are invalid"})
			return
		}
		pos = registration.Available(coord)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be denied or unavailable"})
		return
	}

	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	snap, err := s.UpdatePosition(pos)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

type attendanceRequest struct {
	Name     string `json:"name"`
	MatricNo string `json:"matric_no"`
}

// SubmitAttendance registers the student if the session allows it.
func (h *Handler) SubmitAttendance(c *gin.Context) {
	var req attendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	rec, err := s.Submit(c.Request.Context(), req.Name, req.MatricNo)
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Attendance registered successfully",
		"record":  rec,
		"session": s.Snapshot(),
	})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	h.sessions.Remove(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *Handler) sessionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, registration.ErrSessionNotFound), errors.Is(err, registration.ErrClassNotFound):
		status = http.StatusNotFound
	case errors.Is(err, registration.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, registration.ErrMissingFields):
		status = http.StatusBadRequest
	case errors.Is(err, registration.ErrDuplicate),
		errors.Is(err, registration.ErrNotReady),
		errors.Is(err, registration.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, registration.ErrOutOfRange),
		errors.Is(err, registration.ErrDistanceCheckDisabled),
		errors.Is(err, registration.ErrPositionUnknown),
		errors.Is(err, registration.ErrLocationUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, registration.ErrStorage):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("registration request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
