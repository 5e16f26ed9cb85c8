package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"trackas/internal/cloudinary"
	"trackas/internal/geo"
	"trackas/internal/qr"
	"trackas/internal/queue"
)

var (
	// ErrClassNotFound is returned when a class does not exist or belongs to
	// another lecturer.
	ErrClassNotFound = errors.New("class not found")
	// ErrInvalidClass wraps validation failures on schedule input.
	ErrInvalidClass = errors.New("invalid class")
)

// ClassStore is the persistence surface the service needs.
type ClassStore interface {
	InsertClass(ctx context.Context, c Class) (Class, error)
	GetClass(ctx context.Context, id string) (*Class, error)
	UpdateClassQRCode(ctx context.Context, id, qrCode string) error
	ListClassesByLecturer(ctx context.Context, lecturerID string, limit, offset int) ([]Class, error)
	ListRecords(ctx context.Context, classID string) ([]Record, error)
}

// ImageUploader stores rendered QR images; cloudinary.Client satisfies it.
type ImageUploader interface {
	UploadPNG(ctx context.Context, data []byte, publicID string) (*cloudinary.UploadResult, error)
}

// Publisher enqueues background work.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// ErrorReporter receives unexpected failures that did not abort the request.
type ErrorReporter interface {
	ReportError(err error, tags map[string]string)
}

// ScheduleInput is what a lecturer submits to schedule a class. Date is
// YYYY-MM-DD and Time is HH:MM in the service's time zone. Latitude and
// Longitude carry the map selection and may be absent.
type ScheduleInput struct {
	LecturerID   string `json:"-"`
	CourseTitle  string `json:"course_title"`
	CourseCode   string `json:"course_code"`
	LectureVenue string `json:"lecture_venue"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Note         string `json:"note"`
	Latitude     any    `json:"latitude"`
	Longitude    any    `json:"longitude"`
}

// Scheduled is the result of scheduling a class.
type Scheduled struct {
	Class            Class  `json:"class"`
	RegistrationLink string `json:"registration_link"`
	// VenuePending is set when the venue had no usable coordinate and was
	// queued for geocoding.
	VenuePending bool `json:"venue_pending"`
}

// Service coordinates class scheduling and attendance review.
type Service struct {
	store    ClassStore
	uploader ImageUploader
	pub      Publisher
	reporter ErrorReporter
	baseURL  string
	loc      *time.Location
	logger   zerolog.Logger
}

// NewService creates a service. uploader, pub and reporter may be nil.
func NewService(store ClassStore, uploader ImageUploader, pub Publisher, reporter ErrorReporter, baseURL string, loc *time.Location, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:    store,
		uploader: uploader,
		pub:      pub,
		reporter: reporter,
		baseURL:  baseURL,
		loc:      loc,
		logger:   logger,
	}
}

// Location is the time zone used for class dates and exports.
func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) validate(in ScheduleInput) (date, at time.Time, venue *geo.Coordinate, err error) {
	var problems []string
	if strings.TrimSpace(in.LecturerID) == "" {
		problems = append(problems, "lecturer id required")
	}
	if strings.TrimSpace(in.CourseTitle) == "" {
		problems = append(problems, "course title required")
	}
	if strings.TrimSpace(in.CourseCode) == "" {
		problems = append(problems, "course code required")
	}

	date, derr := time.ParseInLocation("2006-01-02", strings.TrimSpace(in.Date), s.loc)
	if derr != nil {
		problems = append(problems, "date must be YYYY-MM-DD")
	}
	at, terr := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(in.Date)+" "+strings.TrimSpace(in.Time), s.loc)
	if terr != nil && derr == nil {
		problems = append(problems, "time must be HH:MM")
	}

	if c, ok := geo.Normalize(in.Latitude, in.Longitude); ok {
		venue = &c
	}
	if venue == nil && strings.TrimSpace(in.LectureVenue) == "" {
		problems = append(problems, "lecture venue location required")
	}

	if len(problems) > 0 {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("%w: %s", ErrInvalidClass, strings.Join(problems, "; "))
	}
	return date, at, venue, nil
}

// ScheduleClass stores a new class, renders its registration QR code and,
// when the venue has no usable coordinate, queues it for geocoding.
func (s *Service) ScheduleClass(ctx context.Context, in ScheduleInput) (Scheduled, error) {
	date, at, venue, err := s.validate(in)
	if err != nil {
		return Scheduled{}, err
	}

	c := Class{
		LecturerID:   strings.TrimSpace(in.LecturerID),
		CourseTitle:  strings.TrimSpace(in.CourseTitle),
		CourseCode:   strings.TrimSpace(in.CourseCode),
		LocationName: strings.TrimSpace(in.LectureVenue),
		Date:         date.UTC(),
		Time:         at.UTC(),
		Note:         strings.TrimSpace(in.Note),
	}
	if venue != nil {
		c.Latitude, c.Longitude = &venue.Lat, &venue.Lng
	}

	c, err = s.store.InsertClass(ctx, c)
	if err != nil {
		return Scheduled{}, fmt.Errorf("insert class: %w", err)
	}

	link := qr.RegistrationLink(s.baseURL, c.ID, strings.TrimSpace(in.Time), c.CourseCode, venue)
	if code, err := s.storeQR(ctx, c.ID, link); err != nil {
		s.report(err, "store_qr", c.ID)
	} else {
		c.QRCode = code
	}

	out := Scheduled{Class: c, RegistrationLink: link}
	if venue == nil {
		out.VenuePending = true
		if s.pub != nil {
			if err := s.pub.Publish(ctx, queue.Message{Type: queue.TypeVenueResolve, Body: []byte(c.ID)}); err != nil {
				s.report(fmt.Errorf("queue venue resolve: %w", err), "publish_venue", c.ID)
			}
		}
	}

	s.logger.Info().
		Str("class_id", c.ID).
		Str("course_code", c.CourseCode).
		Bool("venue_pending", out.VenuePending).
		Msg("class scheduled")
	return out, nil
}

func (s *Service) storeQR(ctx context.Context, classID, link string) (string, error) {
	png, err := qr.PNG(link, qr.DefaultSize)
	if err != nil {
		return "", err
	}
	code := qr.DataURL(png)
	if s.uploader != nil {
		res, err := s.uploader.UploadPNG(ctx, png, "qr/"+classID)
		if err != nil {
			s.logger.Warn().Err(err).Str("class_id", classID).Msg("qr upload failed, storing data url")
		} else {
			code = res.SecureURL
		}
	}
	if err := s.store.UpdateClassQRCode(ctx, classID, code); err != nil {
		return "", fmt.Errorf("update qr code: %w", err)
	}
	return code, nil
}

func (s *Service) report(err error, op, classID string) {
	if s.reporter != nil {
		s.reporter.ReportError(err, map[string]string{"op": op, "class_id": classID})
		return
	}
	s.logger.Error().Err(err).Str("op", op).Str("class_id", classID).Msg("class scheduling step failed")
}

// ListClasses returns a lecturer's classes, most recent first.
func (s *Service) ListClasses(ctx context.Context, lecturerID string, limit, offset int) ([]Class, error) {
	classes, err := s.store.ListClassesByLecturer(ctx, lecturerID, limit, offset)
	if err != nil {
		return nil, err
	}
	if classes == nil {
		classes = []Class{}
	}
	return classes, nil
}

// OwnedClass returns the class when it belongs to lecturerID.
func (s *Service) OwnedClass(ctx context.Context, lecturerID, classID string) (*Class, error) {
	c, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.LecturerID != lecturerID {
		return nil, ErrClassNotFound
	}
	return c, nil
}

// ListAttendance returns the attendance of a lecturer's class in registration order.
func (s *Service) ListAttendance(ctx context.Context, lecturerID, classID string) ([]Record, error) {
	if _, err := s.OwnedClass(ctx, lecturerID, classID); err != nil {
		return nil, err
	}
	recs, err := s.store.ListRecords(ctx, classID)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []Record{}
	}
	return recs, nil
}

// RegistrationLink rebuilds the link for an existing class.
func (s *Service) RegistrationLink(c Class) string {
	return qr.RegistrationLink(s.baseURL, c.ID, c.Time.In(s.loc).Format("15:04"), c.CourseCode, c.Venue())
}
