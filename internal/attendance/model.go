package attendance

import (
	"time"

	"trackas/internal/geo"
)

// Class is a scheduled lecture and its venue.
type Class struct {
	ID           string    `json:"id"`
	LecturerID   string    `json:"lecturer_id"`
	CourseTitle  string    `json:"course_title"`
	CourseCode   string    `json:"course_code"`
	LocationName string    `json:"location_name"`
	Latitude     *float64  `json:"latitude"`
	Longitude    *float64  `json:"longitude"`
	Date         time.Time `json:"date"`
	Time         time.Time `json:"time"`
	Note         string    `json:"note"`
	QRCode       string    `json:"qr_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// Attendees is filled by list queries only.
	Attendees int `json:"attendees"`
}

// Venue returns the stored venue coordinate after normalization, or nil.
func (c Class) Venue() *geo.Coordinate {
	coord, ok := geo.NormalizePtr(c.Latitude, c.Longitude)
	if !ok {
		return nil
	}
	return &coord
}

// Record is a single student's attendance for a class.
type Record struct {
	ID          string    `json:"id"`
	ClassID     string    `json:"class_id"`
	StudentName string    `json:"student_name"`
	MatricNo    string    `json:"matric_no"`
	Distance    *float64  `json:"distance"`
	Status      bool      `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}
