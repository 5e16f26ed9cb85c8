package attendance

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var schema string

// ErrDuplicate is returned when a matric number already has a record for a class.
var ErrDuplicate = errors.New("attendance already registered for this matric number")

const uniqueViolation = "23505"

// Repository persists classes and attendance in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const classColumns = `id, lecturer_id, course_title, course_code, location_name, latitude, longitude, date, time, note, qr_code, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanClass(s scanner, extra ...any) (Class, error) {
	var c Class
	dest := []any{&c.ID, &c.LecturerID, &c.CourseTitle, &c.CourseCode, &c.LocationName,
		&c.Latitude, &c.Longitude, &c.Date, &c.Time, &c.Note, &c.QRCode, &c.CreatedAt}
	err := s.Scan(append(dest, extra...)...)
	return c, err
}

// InsertClass writes a new class and returns it with generated fields set.
func (r *Repository) InsertClass(ctx context.Context, c Class) (Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, lecturer_id, course_title, course_code, location_name, latitude, longitude, date, time, note, qr_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at
	`, c.ID, c.LecturerID, c.CourseTitle, c.CourseCode, c.LocationName, c.Latitude, c.Longitude, c.Date, c.Time, c.Note, c.QRCode)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return Class{}, err
	}
	return c, nil
}

// GetClass returns a class by id, or nil when no row matches.
func (r *Repository) GetClass(ctx context.Context, id string) (*Class, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE id = $1`, id)
	c, err := scanClass(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// UpdateClassCoordinates stores a resolved venue coordinate.
func (r *Repository) UpdateClassCoordinates(ctx context.Context, id string, lat, lng float64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE classes SET latitude = $2, longitude = $3 WHERE id = $1`, id, lat, lng)
	return err
}

// UpdateClassQRCode stores the rendered QR code (data URL or CDN URL).
func (r *Repository) UpdateClassQRCode(ctx context.Context, id, qrCode string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE classes SET qr_code = $2 WHERE id = $1`, id, qrCode)
	return err
}

// ListClassesByLecturer returns a lecturer's classes, newest date first,
// with the number of recorded attendees.
func (r *Repository) ListClassesByLecturer(ctx context.Context, lecturerID string, limit, offset int) ([]Class, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.lecturer_id, c.course_title, c.course_code, c.location_name, c.latitude, c.longitude,
		       c.date, c.time, c.note, c.qr_code, c.created_at,
		       (SELECT COUNT(*) FROM attendance a WHERE a.class_id = c.id)
		FROM classes c
		WHERE c.lecturer_id = $1
		ORDER BY c.date DESC
		LIMIT $2 OFFSET $3
	`, lecturerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Class
	for rows.Next() {
		var count int
		c, err := scanClass(rows, &count)
		if err != nil {
			return nil, err
		}
		c.Attendees = count
		res = append(res, c)
	}
	return res, rows.Err()
}

const recordColumns = `id, class_id, student_name, matric_no, distance, status, timestamp`

func scanRecord(s scanner) (Record, error) {
	var rec Record
	err := s.Scan(&rec.ID, &rec.ClassID, &rec.StudentName, &rec.MatricNo, &rec.Distance, &rec.Status, &rec.Timestamp)
	return rec, err
}

// FindRecord returns the record for (classID, matricNo), or nil when none exists.
func (r *Repository) FindRecord(ctx context.Context, classID, matricNo string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance
		WHERE class_id = $1 AND matric_no = $2
		LIMIT 1
	`, classID, matricNo)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertRecord writes an attendance record. The (class_id, matric_no) unique
// constraint backs up the caller's duplicate check and surfaces as ErrDuplicate.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance (id, class_id, student_name, matric_no, distance, status, timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, rec.ID, rec.ClassID, rec.StudentName, rec.MatricNo, rec.Distance, rec.Status, rec.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// ListRecords returns a class's attendance in registration order.
func (r *Repository) ListRecords(ctx context.Context, classID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance
		WHERE class_id = $1
		ORDER BY timestamp ASC
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// NormalizeMatricNo canonicalizes a student identifier for storage and lookup.
func NormalizeMatricNo(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeName canonicalizes a student name for storage.
func NormalizeName(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), " "))
}
