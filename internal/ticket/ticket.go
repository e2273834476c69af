// Package ticket renders check-in QR codes for registrations that hold a
// spot.
package ticket

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"eventdesk/internal/model"
)

const DefaultSize = 256

// ErrNoTicket is returned for registrations that do not hold a spot.
var ErrNoTicket = errors.New("registration has no ticket")

// CheckInURL is the address encoded in the QR code. Door staff open it to
// mark the participant present.
func CheckInURL(baseURL string, reg model.Registration) string {
	base := strings.TrimRight(baseURL, "/")
	q := url.Values{"registration": {reg.ID}, "event": {reg.EventID}}
	return base + "/checkin?" + q.Encode()
}

// PNG encodes the check-in URL of reg as a size×size PNG. Size falls back
// to DefaultSize when not positive.
func PNG(baseURL string, reg model.Registration, size int) ([]byte, error) {
	if !reg.Status.Counted() {
		return nil, fmt.Errorf("%s is %s: %w", reg.ID, reg.Status, ErrNoTicket)
	}
	if size <= 0 {
		size = DefaultSize
	}
	png, err := qrcode.Encode(CheckInURL(baseURL, reg), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
