package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"trackas/internal/attendance"
	"trackas/internal/auth"
	"trackas/internal/registration"
)

// ClassService is the lecturer-facing class API; attendance.Service satisfies it.
type ClassService interface {
	ScheduleClass(ctx context.Context, in attendance.ScheduleInput) (attendance.Scheduled, error)
	ListClasses(ctx context.Context, lecturerID string, limit, offset int) ([]attendance.Class, error)
	OwnedClass(ctx context.Context, lecturerID, classID string) (*attendance.Class, error)
	ListAttendance(ctx context.Context, lecturerID, classID string) ([]attendance.Record, error)
	RegistrationLink(c attendance.Class) string
	Location() *time.Location
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

type Handler struct {
	classes  ClassService
	sessions *registration.Sessions
	signer   *auth.Signer
	poller   *attendance.Poller
	checks   map[string]HealthCheck
	logger   zerolog.Logger
	now      func() time.Time
}

func New(classes ClassService, sessions *registration.Sessions, signer *auth.Signer, poller *attendance.Poller, checks map[string]HealthCheck, logger zerolog.Logger) *Handler {
	return &Handler{
		classes:  classes,
		sessions: sessions,
		signer:   signer,
		poller:   poller,
		checks:   checks,
		logger:   logger,
		now:      time.Now,
	}
}

// Router builds the gin engine with middleware and all routes. limiter may be nil.
func (h *Handler) Router(limiter gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(h.logger, "/healthz", "/metrics"))
	r.Use(CORS())
	r.Use(SecurityHeaders())
	if limiter != nil {
		r.Use(limiter)
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/lecturers/token", h.IssueToken)

	v1.POST("/sessions", h.CreateSession)
	v1.GET("/sessions/:id", h.GetSession)
	v1.PUT("/sessions/:id/position", h.UpdatePosition)
	v1.POST("/sessions/:id/attendance", h.SubmitAttendance)
	v1.DELETE("/sessions/:id", h.DeleteSession)

	lect := v1.Group("/classes", auth.LecturerAuth(h.signer))
	lect.POST("", h.ScheduleClass)
	lect.GET("", h.ListClasses)
	lect.GET("/:id/qr.png", h.ClassQR)
	lect.GET("/:id/attendance", h.ListAttendance)
	lect.GET("/:id/attendance/stream", h.StreamAttendance)
	return r
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Lecturer token ----------

type tokenRequest struct {
	LecturerID string `json:"lecturer_id" binding:"required"`
}

// IssueToken hands out lecturer tokens. There is no password model; the
// lecturer id is trusted as given.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pair, err := h.signer.Issue(req.LecturerID, auth.RoleLecturer)
	if err != nil {
		h.logger.Error().Err(err).Msg("token issue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusCreated, pair)
}
