package attendance

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

const exportTimeLayout = "January 2, 2006 03:04 PM"

// WriteCSV writes the attendance list as CSV with a header row. Timestamps
// are rendered in loc.
func WriteCSV(w io.Writer, recs []Record, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Name", "Matric No", "Attended At"}); err != nil {
		return err
	}
	for _, r := range recs {
		if err := cw.Write([]string{cell(r.StudentName), cell(r.MatricNo), r.Timestamp.In(loc).Format(exportTimeLayout)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// cell quotes values that a spreadsheet would otherwise evaluate as a formula.
func cell(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// ExportFilename names a CSV export the way lecturers download it.
func ExportFilename(courseCode string, now time.Time) string {
	if courseCode == "" {
		courseCode = "attendance"
	}
	return fmt.Sprintf("attendance_list_%s_%s.csv", sanitize(courseCode), now.UTC().Format("20060102T150405Z"))
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
