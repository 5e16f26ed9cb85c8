package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trackas/internal/attendance"
	"trackas/internal/auth"
	"trackas/internal/qr"
)

// ---------- Lecturer classes ----------

func (h *Handler) ScheduleClass(c *gin.Context) {
	var in attendance.ScheduleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.LecturerID = auth.LecturerID(c)

	out, err := h.classes.ScheduleClass(c.Request.Context(), in)
	if err != nil {
		h.classError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListClasses(c *gin.Context) {
	limit, offset := 50, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	classes, err := h.classes.ListClasses(c.Request.Context(), auth.LecturerID(c), limit, offset)
	if err != nil {
		h.classError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"classes": classes})
}

// ClassQR renders the registration QR code for a class as PNG.
func (h *Handler) ClassQR(c *gin.Context) {
	class, err := h.classes.OwnedClass(c.Request.Context(), auth.LecturerID(c), c.Param("id"))
	if err != nil {
		h.classError(c, err)
		return
	}
	png, err := qr.PNG(h.classes.RegistrationLink(*class), qr.DefaultSize)
	if err != nil {
		h.classError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, "image/png", png)
}

// ListAttendance returns a class's attendance as JSON, or as a CSV download
// with ?format=csv.
func (h *Handler) ListAttendance(c *gin.Context) {
	ctx := c.Request.Context()
	lecturerID := auth.LecturerID(c)
	class, err := h.classes.OwnedClass(ctx, lecturerID, c.Param("id"))
	if err != nil {
		h.classError(c, err)
		return
	}
	recs, err := h.classes.ListAttendance(ctx, lecturerID, class.ID)
	if err != nil {
		h.classError(c, err)
		return
	}

	if c.Query("format") == "csv" {
		name := attendance.ExportFilename(class.CourseCode, h.now())
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
		c.Status(http.StatusOK)
		if err := attendance.WriteCSV(c.Writer, recs, h.classes.Location()); err != nil {
			h.logger.Error().Err(err).Str("class_id", class.ID).Msg("csv export failed")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"class":      class,
		"attendance": recs,
		"count":      len(recs),
	})
}

// StreamAttendance pushes the attendance list as server-sent events whenever
// it changes. Polling stops when the client disconnects.
func (h *Handler) StreamAttendance(c *gin.Context) {
	lecturerID := auth.LecturerID(c)
	class, err := h.classes.OwnedClass(c.Request.Context(), lecturerID, c.Param("id"))
	if err != nil {
		h.classError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	list := func(ctx context.Context) ([]attendance.Record, error) {
		return h.classes.ListAttendance(ctx, lecturerID, class.ID)
	}
	emit := func(recs []attendance.Record) error {
		c.SSEvent("attendance", recs)
		c.Writer.Flush()
		return c.Request.Context().Err()
	}
	if err := h.poller.Watch(c.Request.Context(), list, emit); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn().Err(err).Str("class_id", class.ID).Msg("attendance stream ended")
	}
}

func (h *Handler) classError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, attendance.ErrInvalidClass):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrClassNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "class not found"})
	default:
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("class request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
