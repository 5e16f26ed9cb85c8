package qr

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/skip2/go-qrcode"

	"trackas/internal/geo"
)

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// RegistrationLink builds the student-facing link encoded in a class QR code.
// The venue coordinate is included only when known.
func RegistrationLink(baseURL, classID, classTime, courseCode string, venue *geo.Coordinate) string {
	q := url.Values{}
	q.Set("classId", classID)
	q.Set("time", classTime)
	q.Set("courseCode", courseCode)
	if venue != nil {
		q.Set("lat", strconv.FormatFloat(venue.Lat, 'f', -1, 64))
		q.Set("lng", strconv.FormatFloat(venue.Lng, 'f', -1, 64))
	}
	return strings.TrimRight(baseURL, "/") + "/attendance?" + q.Encode()
}

// PNG renders content as a QR code image.
func PNG(content string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return png, nil
}

// DataURL wraps PNG bytes as a data URL suitable for an <img> src.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
