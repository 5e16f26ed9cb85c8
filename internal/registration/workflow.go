package registration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trackas/internal/attendance"
	"trackas/internal/geo"
	"trackas/internal/metrics"
)

var (
	ErrClassNotFound         = attendance.ErrClassNotFound
	ErrDuplicate             = attendance.ErrDuplicate
	ErrMissingFields         = errors.New("name and matriculation number are required")
	ErrOutOfRange            = errors.New("you are not within range of the lecture venue")
	ErrDistanceCheckDisabled = errors.New("class coordinates missing or invalid, distance check disabled")
	ErrPositionUnknown       = errors.New("location not reported yet, eligibility cannot be verified")
	ErrLocationUnavailable   = errors.New("location unavailable, please enable location services to register")
	ErrSessionClosed         = errors.New("registration session closed")
	ErrNotReady              = errors.New("registration session is still loading")
	ErrInvalidState          = errors.New("operation not allowed in current session state")
	ErrStorage               = errors.New("storage unavailable, please try again")
)

// Store is the persistence the workflow depends on.
type Store interface {
	GetClass(ctx context.Context, id string) (*attendance.Class, error)
	UpdateClassCoordinates(ctx context.Context, id string, lat, lng float64) error
	FindRecord(ctx context.Context, classID, matricNo string) (*attendance.Record, error)
	InsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error)
}

// Resolver geocodes a venue name. It reports failure as ok == false.
type Resolver interface {
	Resolve(ctx context.Context, name string) (geo.Coordinate, bool)
}

// ErrorReporter receives storage failures worth alerting on.
type ErrorReporter interface {
	ReportError(err error, tags map[string]string)
}

// Workflow creates registration sessions sharing one set of collaborators.
type Workflow struct {
	store     Store
	resolver  Resolver
	threshold float64
	reporter  ErrorReporter
	logger    zerolog.Logger
	now       func() time.Time
}

// NewWorkflow creates a workflow. resolver and reporter may be nil; a
// non-positive threshold falls back to geo.DefaultThresholdMeters.
func NewWorkflow(store Store, resolver Resolver, thresholdMeters float64, reporter ErrorReporter, logger zerolog.Logger) *Workflow {
	if thresholdMeters <= 0 {
		thresholdMeters = geo.DefaultThresholdMeters
	}
	return &Workflow{
		store:     store,
		resolver:  resolver,
		threshold: thresholdMeters,
		reporter:  reporter,
		logger:    logger,
		now:       time.Now,
	}
}

// ThresholdMeters is the configured registration radius.
func (w *Workflow) ThresholdMeters() float64 {
	return w.threshold
}

// NewSession returns an unloaded session for classID.
func (w *Workflow) NewSession(classID string) *Session {
	return &Session{
		id:         uuid.NewString(),
		classID:    classID,
		wf:         w,
		state:      StateLoading,
		lastActive: w.now(),
	}
}

// Start creates a session and loads its class and venue.
func (w *Workflow) Start(ctx context.Context, classID string) (*Session, error) {
	s := w.NewSession(classID)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (w *Workflow) report(err error, op string, s *Session) {
	tags := map[string]string{"op": op, "class_id": s.classID, "session_id": s.id}
	if w.reporter != nil {
		w.reporter.ReportError(err, tags)
		return
	}
	w.logger.Error().Err(err).Str("op", op).Str("class_id", s.classID).Msg("registration storage failure")
}

func verdictOutcome(v geo.Verdict, pos Position) string {
	switch {
	case v.CheckDisabled:
		return "disabled"
	case pos.Status != PositionAvailable:
		return "unavailable"
	case v.WithinRange:
		return "within"
	default:
		return "outside"
	}
}

func countVerdict(v geo.Verdict, pos Position) {
	metrics.EligibilityVerdicts.WithLabelValues(verdictOutcome(v, pos)).Inc()
}
